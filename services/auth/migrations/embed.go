// Package migrations holds the auth service schema.
package migrations

import "embed"

// FS contains the *.up.sql files applied at startup in lexical order.
//
//go:embed *.sql
var FS embed.FS
