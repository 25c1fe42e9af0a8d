// Package migrations embeds the SQL schema so the migrate binary does
// not depend on the working directory at deploy time.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
