// Package schema embeds the goose migrations so the server can apply them at startup
// (SESSION_STORE=postgres). The same files are used by the goose CLI:
//
//	goose -dir sql/schema postgres "$DATABASE_URL" up
package schema

import "embed"

//go:embed *.sql
var FS embed.FS
