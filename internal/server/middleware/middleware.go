package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eid-tools/dds-hashcode/internal/api"
	"github.com/eid-tools/dds-hashcode/internal/logger"
)

// RequestSizeLimit returns a middleware that enforces a maximum request body size.
//
// Requests with a Content-Length above the limit are rejected before the body is read. Otherwise the body is
// wrapped in http.MaxBytesReader and the handler reports 413 when it reads past the limit
// (uploaded containers are streamed through multipart parsing).
//
// The X-Max-Request-Size header is added to all responses.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Max-Request-Size", strconv.FormatInt(maxBytes, 10))

			if r.ContentLength > maxBytes {
				err := api.NewRequestTooLargeError(
					fmt.Sprintf("Request body size (%d bytes) exceeds maximum allowed size (%d bytes)", r.ContentLength, maxBytes),
				)
				api.RespondWithErrorResponse(w, r, err)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security-related headers to all responses
func SecurityHeaders(environment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")

			if environment == "prod" || environment == "staging" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// idle client limiters are dropped after this long
const clientLimiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client address
type clientLimiters struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

func (c *clientLimiters) allow(client string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) > clientLimiterIdle {
		for addr, cl := range c.clients {
			if now.Sub(cl.lastSeen) > clientLimiterIdle {
				delete(c.clients, addr)
			}
		}
		c.lastSweep = now
	}

	cl, ok := c.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// RateLimit limits requests per second for each client address (set by chi's RealIP middleware when the
// server runs behind a proxy). If requestsPerSecond <= 0, rate limiting is disabled.
//
// A signing session takes several requests (upload, prepare, finalize, download) so the burst should allow
// a complete workflow.
func RateLimit(requestsPerSecond int32, burst int32) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiters := &clientLimiters{
		clients:   make(map[string]*clientLimiter),
		rps:       rate.Limit(requestsPerSecond),
		burst:     int(burst),
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddress(r)
			if !limiters.allow(client, time.Now()) {
				reqLogger := logger.ContextRequestLogger(r.Context())

				reqLogger.Warn("Rate limit exceeded",
					slog.String("component", "RateLimit"),
					slog.String("client", client),
				)

				logger.ContextWithLogAttrs(r.Context(),
					slog.String("client", client),
				)

				err := api.NewRateLimitError("Too many requests. Please try again later.")
				api.RespondWithErrorResponse(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress returns the host part of the remote address
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
