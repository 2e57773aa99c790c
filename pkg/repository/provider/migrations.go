package provider

import "embed"

// migrationsFS embeds the per-dialect schema migrations. golang-migrate
// reads them through an iofs source driver.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS
