// Package models defines persistent entities and the repository contract for opsync.
//
// [SyncJob] records one bulk update run: the table, the patch, the ids it covered and
// how each id ended up. A job with failed or not-attempted ids can be retried; the
// retry becomes a new job whose parent is the original.
//
// Entities implement [Model], exposing their state through getters so that
// persistence code in the repositories package cannot bypass validation.
package models
