// Package migrations embeds the SQL migrations for the organizer databases.
// The events/ directory holds the journal schema; projections/ holds the
// rebuildable read-side schema.
package migrations

import "embed"

// FS contains the embedded migration files.
//
//go:embed events/*.sql projections/*.sql
var FS embed.FS
