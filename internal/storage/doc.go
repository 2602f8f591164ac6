// Package storage persists feed events and answers time-window queries.
//
// Two backends share one implementation over database/sql:
//   - "sqlite": a local database file (modernc.org/sqlite, no cgo)
//   - "postgres": PostgreSQL through pgx's database/sql driver
//
// Deduplication is enforced by the backend's unique indexes and a single
// conditional insert, so several processes may write to the same database.
package storage
