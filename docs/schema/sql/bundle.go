// Package sqldocs exposes the snapshot state-table DDL directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite creates the state table used by the SQLite snapshot backend.
//
//go:embed sqlite.sql
var SQLite string

// Postgres creates the state table used by the Postgres snapshot backend.
//
//go:embed postgres.sql
var Postgres string
