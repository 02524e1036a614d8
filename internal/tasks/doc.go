// Package tasks orchestrates bulk record updates with real-time progress reporting.
//
// # Core Operations
//
// The [SyncEngine] interface defines four operations:
//
//  1. [SyncEngine.Update] : validated bulk write of one patch to many records
//     - Resolves the logical table and checks the patch against its schema
//     - Records a [models.SyncJob] when a job repository is configured
//     - Hands the ids to the [batch.Coordinator] and reports every finished chunk
//     - Optionally reads the written records back and confirms each field
//     - Drops cached view counts of the affected service
//
//  2. [SyncEngine.Retry] : re-runs the failed and not-attempted ids of a stored job
//     with the stored patch. Patches hold absolute values, so repeating ids that did
//     land in the store has no further effect.
//
//  3. [SyncEngine.Verify] : reads records and compares every patched field,
//     distinguishing records that are gone from fields that differ
//
//  4. [SyncEngine.CountViews] : per-view record counts for one service
//
// # Progress Reporting
//
// All operations accept an optional progress channel. Updates are sent with
// select and default so a slow reader never stalls a run.
//
// # Implementation
//
// [RecordEngine] implements [SyncEngine] on top of a [RecordStore]; the production
// store is services.RecordStore.
package tasks
