// Package db embeds the SQL migrations applied at startup.
package db

import "embed"

// Migrations holds every migrations/*.sql file, applied in lexical order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
