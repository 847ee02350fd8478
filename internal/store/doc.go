// Package store persists simulation results in a SQLite database.
//
// A run is the outcome of one simulation: its configuration, the
// logged paths in configuration order, and the recorded samples. Runs
// are addressed by UUID. Writes are idempotent on the run ID, so a
// retried save of the same run is a no-op rather than a duplicate.
package store
