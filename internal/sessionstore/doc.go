/*
Package sessionstore provides the signing.Store implementations selected with SESSION_STORE:

  - memory: a map guarded by a mutex. Sessions are lost on restart (the DigiDocService sessions they refer to
    expire on the service side).
  - postgres: the signing_sessions table (sql/schema), accessed through the sqlc queries in internal/database.
  - redis: one JSON value per session with a TTL, plus a sorted set of session IDs scored by their last update
    used by the housekeeping sweep.

All implementations return signing.ErrSessionNotFound for unknown sessions and are safe for concurrent use.
Returned sessions are copies: changing them does not change the stored record.
*/
package sessionstore
