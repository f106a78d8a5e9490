package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/eid-tools/dds-hashcode/internal/api"
)

func TestRequestSizeLimit(t *testing.T) {
	const maxRequestSize = 64

	router := chi.NewRouter()
	router.With(RequestSizeLimit(maxRequestSize)).Post("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	tests := []struct {
		name          string
		bodySize      int
		contentLength bool
		wantCode      int
	}{
		{"at the limit", maxRequestSize, true, http.StatusCreated},
		{"declared length over the limit", 2 * maxRequestSize, true, http.StatusRequestEntityTooLarge},
		{"streamed body at the limit", maxRequestSize, false, http.StatusCreated},
		{"streamed body over the limit", 2 * maxRequestSize, false, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/sessions", bytes.NewReader(bytes.Repeat([]byte("x"), tt.bodySize)))
			if !tt.contentLength {
				// chunked upload, only the MaxBytesReader sees the size
				req.ContentLength = -1
			}

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("got status %d, want %d", rr.Code, tt.wantCode)
			}
			if header := rr.Header().Get("X-Max-Request-Size"); header != strconv.Itoa(maxRequestSize) {
				t.Errorf("X-Max-Request-Size = %q", header)
			}

			if tt.wantCode == http.StatusRequestEntityTooLarge {
				var resp api.ErrorResponse
				if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if len(resp.Errors) != 1 || resp.Errors[0].ErrorCode != api.ErrCodeRequestTooLarge {
					t.Errorf("unexpected error response: %+v", resp)
				}
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name        string
		rps         int32
		burst       int32
		wantAllowed int
	}{
		{"burst of 5", 10, 5, 5},
		{"burst of 1", 10, 1, 1},
		{"disabled with 0", 0, 1, 8},
		{"disabled with negative", -1, 1, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := chi.NewRouter()
			router.Use(RateLimit(tt.rps, tt.burst))
			router.Get("/v1/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			allowed := 0
			for range 8 {
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/sessions/x", nil))
				switch rr.Code {
				case http.StatusOK:
					allowed++
				case http.StatusTooManyRequests:
				default:
					t.Fatalf("unexpected status %d", rr.Code)
				}
			}
			if allowed != tt.wantAllowed {
				t.Errorf("allowed %d requests, want %d", allowed, tt.wantAllowed)
			}
		})
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	router := chi.NewRouter()
	router.Use(RateLimit(1, 1))
	router.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	request := func(remoteAddr string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := request("192.0.2.10:40000"); code != http.StatusOK {
		t.Fatalf("first request from client A: got status %d", code)
	}
	// same host, different port
	if code := request("192.0.2.10:40001"); code != http.StatusTooManyRequests {
		t.Errorf("second request from client A: got status %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := request("192.0.2.20:40000"); code != http.StatusOK {
		t.Errorf("first request from client B: got status %d, want %d", code, http.StatusOK)
	}
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		environment string
		wantHSTS    bool
	}{
		{"dev", false},
		{"test", false},
		{"staging", true},
		{"prod", true},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			handler := SecurityHeaders(tt.environment)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

			if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q", got)
			}
			if got := rr.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q", got)
			}
			if hsts := rr.Header().Get("Strict-Transport-Security") != ""; hsts != tt.wantHSTS {
				t.Errorf("HSTS header set = %v, want %v", hsts, tt.wantHSTS)
			}
		})
	}
}
