// Package ledger records finished builds in SQLite so "songpack history" can
// list what was produced, from where, and whether it succeeded.
//
// Each build row carries counts and a manifest fingerprint; the assets table
// lists the content addresses placed in res/ by that build. Schema changes
// bump schemaVersion in schema.go; older databases are rejected with
// ErrSchemaMismatch and must be deleted.
package ledger
