// Package migrations embeds the goose migrations for the backend Postgres
// database: profiles, notifications, their row-level security and the RPC
// functions the client calls.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
