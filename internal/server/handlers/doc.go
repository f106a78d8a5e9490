// Package handlers provides the HTTP handlers of the signing server.
//
// sessions.go holds the /v1/sessions signing workflow endpoints. The remaining files are the
// infrastructure handlers (health, readiness, version, jwks).
package handlers
