package config

import (
	"crypto/tls"
	"net"
	"os"
	"path/filepath"

	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	LDAP     LDAPConfig     `yaml:"ldap"`
	AI       AIConfig       `yaml:"ai"`
	Redis    RedisConfig    `yaml:"redis"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	Mode      string `yaml:"mode"`       // debug, release, test
	StaticDir string `yaml:"static_dir"` // optional SPA build directory
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres, mongo
	DSN    string `yaml:"dsn"`
	Name   string `yaml:"name"` // database name, mongo only
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// AIConfig selects the generative model used by the assistant.
type AIConfig struct {
	Provider       string  `yaml:"provider"` // gemini, openai, azure, anthropic, ollama
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// RedisConfig backs the token blacklist and the async message queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// TLSConfig returns the client TLS settings, or nil when TLS is off.
func (r *RedisConfig) TLSConfig() *tls.Config {
	if !r.TLS {
		return nil
	}
	host, _, err := net.SplitHostPort(r.Addr)
	if err != nil {
		host = r.Addr
	}
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

type RealtimeConfig struct {
	Trigger         string   `yaml:"trigger"`
	MaxMessageBytes int64    `yaml:"max_message_bytes"`
	SendBuffer      int      `yaml:"send_buffer"`
	PersistMessages bool     `yaml:"persist_messages"`
	AllowedOrigins  []string `yaml:"allowed_origins"` // empty allows any origin
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		fileCfg := DefaultConfig()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "3000",
			Mode: "debug",
		},
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "codecollab.db",
			Name:   "codecollab",
		},
		JWT: JWTConfig{
			Secret:     "codecollab-secret-key-change-in-production",
			ExpireHour: 24,
		},
		LDAP: LDAPConfig{
			Enabled:    false,
			Port:       389,
			UserFilter: "(mail=%s)",
		},
		AI: AIConfig{
			Provider:       "gemini",
			Model:          "gemini-2.0-flash",
			Temperature:    0.4,
			MaxTokens:      4096,
			TimeoutSeconds: 60,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Realtime: RealtimeConfig{
			Trigger:         "@ai",
			MaxMessageBytes: 64 * 1024,
			SendBuffer:      64,
			PersistMessages: true,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	// MONGODB_URI implies the document store
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		c.Database.Driver = "mongo"
		c.Database.DSN = uri
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		c.Database.Name = name
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		c.AI.Provider = provider
	}
	if baseURL := os.Getenv("AI_BASE_URL"); baseURL != "" {
		c.AI.BaseURL = baseURL
	}
	if apiKey := os.Getenv("GOOGLE_AI_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	}
	if apiKey := os.Getenv("AI_API_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	}
	if model := os.Getenv("AI_MODEL"); model != "" {
		c.AI.Model = model
	}
	if enabled := os.Getenv("LDAP_ENABLED"); enabled != "" {
		c.LDAP.Enabled = enabled == "true"
	}
	if host := os.Getenv("LDAP_HOST"); host != "" {
		c.LDAP.Host = host
	}
	if baseDN := os.Getenv("LDAP_BASE_DN"); baseDN != "" {
		c.LDAP.BaseDN = baseDN
	}
	if bindDN := os.Getenv("LDAP_BIND_DN"); bindDN != "" {
		c.LDAP.BindDN = bindDN
	}
	if bindPassword := os.Getenv("LDAP_BIND_PASSWORD"); bindPassword != "" {
		c.LDAP.BindPassword = bindPassword
	}

	// Redis URL override (format: redis[s]://[user]:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := c.parseRedisURL(redisURL); err != nil {
			logger.Warn().Err(err).Msg("Ignoring invalid REDIS_URL")
		} else {
			c.Redis.Enabled = true
		}
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		c.Redis.Enabled = true
		c.Redis.Addr = host + ":" + port
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
}

// parseRedisURL applies a redis:// or rediss:// URL to the Redis settings.
func (c *Config) parseRedisURL(redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}
	c.Redis.Addr = opts.Addr
	c.Redis.Username = opts.Username
	c.Redis.Password = opts.Password
	c.Redis.DB = opts.DB
	c.Redis.TLS = opts.TLSConfig != nil
	return nil
}

// WriteDefault writes the default settings to configPath. An existing file
// is left alone and reported with an error wrapping os.ErrExist.
func WriteDefault(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}
	if _, err := os.Stat(configPath); err == nil {
		return &os.PathError{Op: "write default config", Path: configPath, Err: os.ErrExist}
	}
	return DefaultConfig().Save(configPath)
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
