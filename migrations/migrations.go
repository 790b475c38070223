// Package migrations embeds the PostgreSQL schema migrations so the migrate
// command and integration tests apply the same files.
package migrations

import "embed"

// FS holds the numbered golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
