// Package migrations embeds the SQL schema of the override store.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
