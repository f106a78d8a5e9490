// Package integration contains end-to-end tests for the hashcode signing server.
//
// The server is started in-process with the PostgreSQL session store and a fake DigiDocService
// (internal/dds/ddstest). Each test runs against a temporary database, the server applies the migrations on startup.
//
// These tests assume the container, dds and signing packages are working correctly (tested separately).
// If bugs are introduced in lower-level packages, there will be cascading failures here -
// fix the low-level problems first.
package integration
