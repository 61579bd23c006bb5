package store

import _ "embed"

// SchemaSQL is the PostGIS schema, exported so other packages' integration
// suites (e.g. internal/mapdata) can stand up a disposable Store without
// duplicating it.
//
//go:embed schema.sql
var SchemaSQL string
