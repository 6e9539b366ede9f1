package journal

import "embed"

// sqlSchemas holds the SQL migration files, embedded at compile time.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS
