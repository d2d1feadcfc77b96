// Package storage persists metric samples and alert records and tracks
// alert delivery status. The default implementation is an in-memory,
// bounded, append-mostly log; an optional Postgres implementation behind the
// same interface is selected when a database URL is configured.
package storage
