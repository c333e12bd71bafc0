// Package migrations embeds the account store schema migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
