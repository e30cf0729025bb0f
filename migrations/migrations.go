// Package migrations embeds the SQL migrations of the admin session store.
package migrations

import "embed"

// FS holds the numbered .sql files applied by "consult-server migrate up".
//
//go:embed *.sql
var FS embed.FS
