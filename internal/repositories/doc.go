// Package repositories implements SQLite persistence for opsync entities.
//
// Repositories handle CRUD operations with atomic sequence generation for stable ordering.
// Deletes are soft: rows get a deleted_at timestamp and are excluded from queries.
//
// Key Implementations:
//   - [SyncJobRepository] : bulk update history with status and table filters
//
// [NextSequence] increments the per-table counter kept in a dedicated <table>_sequence table.
package repositories
