// Package store persists the workflow's source of truth in SQLite: object
// records harvested from the catalog, submission package history, sync
// checkpoints, heartbeats, and settings.
//
// Status changes go through conditional transitions keyed on the expected
// prior status, so two racing completions can never both advance the same
// object. The task queue and lock service share the same database but live
// in their own packages.
package store
