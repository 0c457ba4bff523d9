// Package migrations embeds the goose SQL migrations that create the
// engine schema (folders, versions, file entries, segments, queue,
// servers, shares).
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
