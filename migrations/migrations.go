// Package migrations embeds the tenant schema migrations.
package migrations

import "embed"

// FS holds the numbered .sql files applied to every tenant schema.
//
//go:embed *.sql
var FS embed.FS
