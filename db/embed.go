// Package db embeds the catalog schema.
package db

import _ "embed"

// Schema creates the lookup, design, variant and audit tables. Every
// statement is idempotent so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
