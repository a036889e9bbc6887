package migrations

import "embed"

// Files exposes embedded SQL migrations. Postgres files are applied in
// lexicographical order; the SQLite backend reads its own variant.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
