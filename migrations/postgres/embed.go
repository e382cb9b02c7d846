// Package postgres embeds the SQL migrations shipped with the binary.
package postgres

import "embed"

//go:embed sql/*.sql
var FS embed.FS

// Dir is the path of the migration files inside FS.
const Dir = "sql"
