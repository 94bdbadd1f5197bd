// Package migrations embeds the SQL schema and seed files applied by
// cmd/migrate.
package migrations

import "embed"

const (
	MigrationsDir = "sql"
	SeedsDir      = "seeds"
)

//go:embed sql/*.sql seeds/*.sql
var FS embed.FS
