// Package migrations embeds the database schema.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files in lexical order.
//
//go:embed *.sql
var FS embed.FS
