// Package migrations embeds the SQLite schema files.
package migrations

import "embed"

// FS holds the ordered schema files, applied once each.
//
//go:embed *.sql
var FS embed.FS
