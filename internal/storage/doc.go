// Package storage persists the seen-set between restarts.
//
// Drivers:
//   - "file": a flat JSON array of the upstream item records
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "redis": one hash per deployment
//
// Persistence is best-effort: callers treat load failures as an empty cache.
package storage
