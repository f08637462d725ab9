// Package migrations embeds the users schema for every supported SQL dialect.
package migrations

import "embed"

// FS holds one directory of goose migrations per dialect.
//
//go:embed sqlite/*.sql mysql/*.sql postgres/*.sql
var FS embed.FS
