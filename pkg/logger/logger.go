package logger

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var root atomic.Pointer[zerolog.Logger]

// query parameters never written to the request log
var redactedParams = []string{"token", "access_token"}

func init() {
	Init("info")
}

// Init configures the process logger. The debug level switches to the
// human readable console format.
func Init(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if lvl == zerolog.DebugLevel {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	SetOutput(w, lvl)
}

// SetOutput replaces the destination and level of every logger created
// afterwards.
func SetOutput(w io.Writer, lvl zerolog.Level) {
	l := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	root.Store(&l)
}

// Level reports the active level.
func Level() zerolog.Level {
	return root.Load().GetLevel()
}

// Component returns a logger tagged with the subsystem name. Long lived
// services keep one of these instead of using the package level events.
func Component(name string) zerolog.Logger {
	return root.Load().With().Str("component", name).Logger()
}

func Debug() *zerolog.Event { return root.Load().Debug() }
func Info() *zerolog.Event  { return root.Load().Info() }
func Warn() *zerolog.Event  { return root.Load().Warn() }
func Error() *zerolog.Event { return root.Load().Error() }
func Fatal() *zerolog.Event { return root.Load().Fatal() }

// GinLogger logs one line per request. Paths in skip are not logged and
// credentials in the query string are masked.
func GinLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.RawQuery)

		c.Next()

		if _, ok := skipped[path]; ok {
			return
		}

		log := Component("http")
		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Int("status", status).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Int("size", c.Writer.Size()).
			Msg("request")
	}
}

// GinRecovery turns a handler panic into a 500 error body.
func GinRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log := Component("http")
		log.Error().
			Interface("panic", recovered).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "internal server error",
		})
	})
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparsed]"
	}
	masked := false
	for _, key := range redactedParams {
		if _, ok := values[key]; ok {
			values.Set(key, "REDACTED")
			masked = true
		}
	}
	if !masked {
		return raw
	}
	return values.Encode()
}
