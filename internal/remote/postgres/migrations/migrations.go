// Package migrations embeds the Postgres schema of the remote document store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
