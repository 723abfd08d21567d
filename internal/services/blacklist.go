package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// BlacklistTTL is how long a revoked token is remembered. It matches the
// token lifetime, after which the signature check rejects it anyway.
const BlacklistTTL = 24 * time.Hour

const revokedSentinel = "logout"

// TokenBlacklist records tokens revoked by logout.
type TokenBlacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	Mode() string
	Close() error
}

// NewTokenBlacklist connects to Redis when enabled and falls back to an
// in-process blacklist otherwise.
func NewTokenBlacklist(ctx context.Context, cfg *config.RedisConfig) TokenBlacklist {
	log := logger.Component("blacklist")
	if cfg.Enabled {
		bl, err := NewRedisBlacklist(ctx, cfg)
		if err == nil {
			log.Info().Str("addr", cfg.Addr).Bool("tls", cfg.TLS).Msg("Using Redis blacklist")
			return bl
		}
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, falling back to memory")
	}
	bl := NewMemoryBlacklist()
	if err := bl.StartSweeper("@every 10m"); err != nil {
		log.Warn().Err(err).Msg("Failed to schedule sweeper")
	}
	log.Info().Msg("Using in-memory blacklist")
	return bl
}

// RedisBlacklist stores each revoked token as a key with a TTL.
type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(ctx context.Context, cfg *config.RedisConfig) (*RedisBlacklist, error) {
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Username:  cfg.Username,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLSConfig(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisBlacklist{client: client}, nil
}

func (b *RedisBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return b.client.Set(ctx, token, revokedSentinel, ttl).Err()
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisBlacklist) Mode() string { return "redis" }

func (b *RedisBlacklist) Close() error {
	return b.client.Close()
}

// MemoryBlacklist keeps revoked tokens in process memory.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
	cron    *cron.Cron
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[token] = b.now().Add(ttl)
	return nil
}

func (b *MemoryBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	expiresAt, ok := b.entries[token]
	return ok && b.now().Before(expiresAt), nil
}

// Sweep drops expired entries and returns how many were removed.
func (b *MemoryBlacklist) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for token, expiresAt := range b.entries {
		if !now.Before(expiresAt) {
			delete(b.entries, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked tokens, expired ones included.
func (b *MemoryBlacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// StartSweeper runs Sweep on the given cron schedule.
func (b *MemoryBlacklist) StartSweeper(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := b.Sweep(); n > 0 {
			logger.Debug().Int("removed", n).Msg("[Blacklist] Swept expired tokens")
		}
	}); err != nil {
		return err
	}
	c.Start()
	b.cron = c
	return nil
}

func (b *MemoryBlacklist) Mode() string { return "memory" }

func (b *MemoryBlacklist) Close() error {
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}
	return nil
}
