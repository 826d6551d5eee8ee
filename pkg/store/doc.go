// Package store is the durable Job Store and Entity Store.
//
// Both run over database/sql with two dialects: Postgres through the pgx
// stdlib driver for production, and SQLite through go-sqlite3 for single-host
// runs and tests. Queries are written once with ? placeholders and rebound
// for Postgres.
//
// Claiming differs per dialect. Postgres selects with FOR UPDATE SKIP LOCKED
// so concurrent workers never see each other's rows; SQLite takes the write
// lock at BEGIN and guards the UPDATE on the status it read. In both cases
// two concurrent claims of the same job yield exactly one winner.
//
// Content and media are keyed by their natural shortcode, so re-ingesting a
// page rewrites the same rows.
package store
