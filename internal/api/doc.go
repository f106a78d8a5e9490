// Package api defines the error response format of the signing API and the helpers handlers use
// to write JSON and error responses.
//
// Errors from the container, crypto, dds and signing packages are mapped to an HTTP status and a numeric
// error code (7000-7999 technical, 8000-8999 functional) by MapErrorToResponse.
package api
