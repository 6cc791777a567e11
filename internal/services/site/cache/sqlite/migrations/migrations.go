// Package migrations embeds the content cache schema.
package migrations

import "embed"

// FS holds the cache migration files.
//
//go:embed *.sql
var FS embed.FS
