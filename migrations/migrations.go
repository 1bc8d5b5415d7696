// Package migrations хранит SQL-схему, применяемую goose при старте.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
