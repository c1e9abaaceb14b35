// Package logger provides the structured, levelled logger used across
// upbridge, built on log/slog.
//
// WithCtx returns the logger stored in a request context (pre-tagged with
// request_id by the Logger middleware), so handlers and upload callbacks can
// log with correlation for free:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("upload stored", "upload_id", id, "disk", "s3")
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/shashiranjanraj/upbridge/config"
)

var (
	current atomic.Pointer[slog.Logger]

	base      slog.Handler
	mu        sync.Mutex
	mongoSink *MongoHandler
)

// L returns the base logger. EnableMongo and CloseSinks swap it atomically,
// so it is safe to call while sinks change.
func L() *slog.Logger { return current.Load() }

func use(l *slog.Logger) {
	current.Store(l)
	slog.SetDefault(l)
}

func init() {
	opts := &slog.HandlerOptions{}

	switch config.AppEnv() {
	case "production", "prod":
		opts.Level = slog.LevelInfo
		base = slog.NewJSONHandler(os.Stdout, opts)
	default:
		opts.Level = slog.LevelDebug
		base = slog.NewTextHandler(os.Stdout, opts)
	}

	use(slog.New(base))
}

// EnableMongo fans every log record out to a MongoDB collection in addition
// to stdout. Call CloseSinks on shutdown to flush.
func EnableMongo(uri, db, collection string) error {
	h, err := NewMongoHandler(uri, db, collection)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if mongoSink != nil {
		mongoSink.Close()
	}
	mongoSink = h
	use(slog.New(NewMultiHandler(base, h)))
	return nil
}

// CloseSinks flushes and detaches any extra sinks. Safe to call when none
// are attached.
func CloseSinks() {
	mu.Lock()
	defer mu.Unlock()
	if mongoSink == nil {
		return
	}
	mongoSink.Close()
	mongoSink = nil
	use(slog.New(base))
}

// ─────────────────────────────────────────────
// Context-aware logger
// ─────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the logger injected into ctx, or L when there is none.
func WithCtx(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
			return log
		}
	}
	return L()
}

// InjectLogger stores log in ctx. Called by the Logger middleware.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// ─────────────────────────────────────────────
// Short-hand helpers (use base logger)
// ─────────────────────────────────────────────

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) { L().Debug(msg, args...) }

// Info logs at INFO level.
func Info(msg string, args ...any) { L().Info(msg, args...) }

// Warn logs at WARN level.
func Warn(msg string, args ...any) { L().Warn(msg, args...) }

// Error logs at ERROR level.
func Error(msg string, args ...any) { L().Error(msg, args...) }
