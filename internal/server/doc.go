// Package server provides the HTTP server of the hashcode signing service.
//
// the server is configured through environment variables
// (see internal/config/config.go for details)
//
// Routes:
//   - /health, /ready, /version and /.well-known/jwks.json (handlers package)
//   - /v1/sessions: the signing workflow (handlers/sessions.go)
//
// Next to the HTTP server a housekeeping loop closes signing sessions that were not used for SESSION_MAX_AGE.
//
// middleware is in internal/server/middleware
package server
