// Package store provides the persistence adapter for tenants, credentials
// and vendor secrets.
//
// Two implementations satisfy the Store interface:
//
//   - SQLStore over database/sql with postgres, mysql and sqlite dialects,
//     optionally guarded by a circuit breaker.
//   - MemoryStore for development and tests.
//
// Every update is a single-row atomic statement. Unique violations surface
// as *util.IntegrityError, missing rows as ErrNotFound and any other
// backend failure as *util.DependencyError.
package store
