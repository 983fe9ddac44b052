// Package migrations embeds the SQL schema migrations so the server can run
// them at startup regardless of working directory.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in filename order.
//
//go:embed *.sql
var FS embed.FS
