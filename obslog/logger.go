// Package obslog provides the structured logging the rest of this module
// uses: a logrus-backed logger with stream-routed output (errors to
// stderr, everything else to stdout) and a small context-field builder
// modeled on request-scoped logging in HTTP services.
package obslog

import (
	"bytes"
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level names the logging levels callers configure by string (config
// files, flags, env vars all carry level as text).
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config controls logger construction.
type Config struct {
	Level   Level
	Format  string // "json" or "text"
	Service string
}

// outputSplitter routes logrus's already-formatted output to stderr for
// error-level entries and stdout for everything else, so container log
// collectors can treat the two streams differently.
type outputSplitter struct{}

func (outputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// New builds a logrus.Logger per cfg, routed through outputSplitter.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(outputSplitter{})

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	return logger
}

var (
	baseOnce sync.Once
	base     *logrus.Logger
)

// Base returns a process-wide logger at info/text defaults, for the
// handful of call sites (package init, a dependency constructor failing
// before a request-scoped logger exists) that need one before New has
// been called with the resolved configuration.
func Base() *logrus.Logger {
	baseOnce.Do(func() {
		base = New(Config{Level: LevelInfo, Format: "text"})
	})
	return base
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID returns a context carrying requestID for later retrieval
// by Fields.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Fields builds a logrus.Fields entry pre-populated with the request ID
// carried on ctx, if any. Handlers chain additional fields onto the
// result with WithFields.
func Fields(ctx context.Context, service string) logrus.Fields {
	f := logrus.Fields{"service": service}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		f["request_id"] = id
	}
	return f
}

// WithOperation times fn and logs its start/end under the "operation"
// field, logging a failure at error level and returning fn's error.
func WithOperation(logger logrus.FieldLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Debug("operation started")

	err := fn()

	entry := logger.WithFields(logrus.Fields{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Debug("operation completed")
	return nil
}
