package logger

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogging adds a request-scoped logger to the request context and logs one line per completed request.
//
// The middleware must run after chi's RequestID middleware so the request id is available.
// Requests that complete with a 5xx status are logged at error level, 4xx at warn level, everything else at info.
func RequestLogging(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := base.With(
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			ctx := ContextWithRequestLogger(r.Context(), reqLogger)
			ctx = context.WithValue(ctx, logAttrsKey, &logAttrs{})

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			}
			attrs = append(attrs, contextLogAttrs(ctx)...)

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			reqLogger.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}
