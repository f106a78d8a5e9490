// Package logger configures the application's slog logger and provides request-scoped loggers.
//
// In dev and test environments logs are written with the tint handler (coloured, human readable).
// In staging and prod they are written as JSON so they can be shipped to a log collector.
//
// Handlers should not use the application logger directly - use ContextRequestLogger(r.Context())
// so that every line carries the request id and method/path of the request being processed.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LevelNone disables logging (used by tests that do not want server output)
const LevelNone = slog.Level(12)

type contextKey int

const (
	requestLoggerKey contextKey = iota
	logAttrsKey
)

// InitLogger creates the application logger and sets it as the slog default.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	return InitLoggerWithWriter(os.Stdout, level, environment)
}

// InitLoggerWithWriter is InitLogger with an explicit output (used in tests)
func InitLoggerWithWriter(w io.Writer, level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler

	switch environment {
	case "prod", "staging":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    environment == "test",
		})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// ParseLogLevel converts a LOG_LEVEL setting to a slog.Level.
// Unknown values default to debug; "none" disables logging.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "none", "off":
		return LevelNone
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// accept the slog text form (e.g "ERROR+4") so a level can round trip through level.String()
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err == nil {
		return l
	}
	return slog.LevelDebug
}

// logAttrs collects attributes added while a request is processed.
// They are emitted on the final request log line.
type logAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// ContextWithRequestLogger returns a context carrying the request logger
func ContextWithRequestLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey, l)
}

// ContextRequestLogger returns the request logger stored in ctx, or the default logger.
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ContextWithLogAttrs records attributes that will be included in the final request log.
// It is a no-op when the context was not created by the RequestLogging middleware.
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	holder, ok := ctx.Value(logAttrsKey).(*logAttrs)
	if !ok {
		return
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	holder.attrs = append(holder.attrs, attrs...)
}

func contextLogAttrs(ctx context.Context) []slog.Attr {
	holder, ok := ctx.Value(logAttrsKey).(*logAttrs)
	if !ok {
		return nil
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	out := make([]slog.Attr, len(holder.attrs))
	copy(out, holder.attrs)
	return out
}
