// Package database provides the SQLite connection and migration runner for
// RackBridge Core.
//
// SQLite is configured for a single writer with WAL mode so the batched
// persistence router can write while the history API reads. Schema is
// managed by embedded, versioned .up.sql files applied at startup.
package database
