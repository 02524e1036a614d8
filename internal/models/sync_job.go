package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
)

// JobStatus is the lifecycle state of a [SyncJob].
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed" // every id written
	JobPartial   JobStatus = "partial"   // some ids failed or were not attempted
	JobFailed    JobStatus = "failed"    // no id written
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobPartial, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether the job has finished.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobPartial || s == JobFailed
}

// SyncJob is the persisted record of one bulk update.
type SyncJob struct {
	id              string
	sequence        int
	table           string
	patch           records.Patch
	recordIDs       []string
	status          JobStatus
	succeeded       int
	failedIDs       []string
	notAttemptedIDs []string
	errorMessage    string
	parentID        string
	startedAt       *time.Time
	completedAt     *time.Time
	createdAt       time.Time
	updatedAt       time.Time
	deletedAt       *time.Time
}

// NewSyncJob creates a pending job. The patch and ids are copied.
func NewSyncJob(table string, ids []string, patch records.Patch) *SyncJob {
	now := time.Now()
	return &SyncJob{
		table:           table,
		patch:           patch.Clone(),
		recordIDs:       slices.Clone(ids),
		status:          JobPending,
		failedIDs:       []string{},
		notAttemptedIDs: []string{},
		createdAt:       now,
		updatedAt:       now,
	}
}

func (j *SyncJob) ID() string                { return j.id }
func (j *SyncJob) Sequence() int             { return j.sequence }
func (j *SyncJob) Table() string             { return j.table }
func (j *SyncJob) Patch() records.Patch      { return j.patch.Clone() }
func (j *SyncJob) RecordIDs() []string       { return slices.Clone(j.recordIDs) }
func (j *SyncJob) Status() JobStatus         { return j.status }
func (j *SyncJob) Succeeded() int            { return j.succeeded }
func (j *SyncJob) FailedIDs() []string       { return slices.Clone(j.failedIDs) }
func (j *SyncJob) NotAttemptedIDs() []string { return slices.Clone(j.notAttemptedIDs) }
func (j *SyncJob) ErrorMessage() string      { return j.errorMessage }
func (j *SyncJob) ParentID() string          { return j.parentID }
func (j *SyncJob) StartedAt() *time.Time     { return j.startedAt }
func (j *SyncJob) CompletedAt() *time.Time   { return j.completedAt }
func (j *SyncJob) CreatedAt() time.Time      { return j.createdAt }
func (j *SyncJob) UpdatedAt() time.Time      { return j.updatedAt }
func (j *SyncJob) DeletedAt() *time.Time     { return j.deletedAt }

func (j *SyncJob) SetID(id string)                 { j.id = id }
func (j *SyncJob) SetSequence(seq int)             { j.sequence = seq }
func (j *SyncJob) SetParentID(id string)           { j.parentID = id }
func (j *SyncJob) SetCreatedAt(t time.Time)        { j.createdAt = t }
func (j *SyncJob) SetUpdatedAt(t time.Time)        { j.updatedAt = t }
func (j *SyncJob) SetDeletedAt(t *time.Time)       { j.deletedAt = t }
func (j *SyncJob) SetStartedAt(t *time.Time)       { j.startedAt = t }
func (j *SyncJob) SetCompletedAt(t *time.Time)     { j.completedAt = t }
func (j *SyncJob) SetStatus(s JobStatus)           { j.status = s }
func (j *SyncJob) SetErrorMessage(msg string)      { j.errorMessage = msg }
func (j *SyncJob) SetSucceeded(n int)              { j.succeeded = n }
func (j *SyncJob) SetFailedIDs(ids []string)       { j.failedIDs = nonNil(ids) }
func (j *SyncJob) SetNotAttemptedIDs(ids []string) { j.notAttemptedIDs = nonNil(ids) }

// Total is the number of ids the job covers.
func (j *SyncJob) Total() int { return len(j.recordIDs) }

// PendingIDs returns the failed then not-attempted ids, the input of a retry.
func (j *SyncJob) PendingIDs() []string {
	out := make([]string, 0, len(j.failedIDs)+len(j.notAttemptedIDs))
	out = append(out, j.failedIDs...)
	return append(out, j.notAttemptedIDs...)
}

// Start marks the job running.
func (j *SyncJob) Start(now time.Time) {
	j.status = JobRunning
	j.startedAt = &now
	j.updatedAt = now
}

// Finish records the outcome and derives the terminal status from it.
func (j *SyncJob) Finish(now time.Time, succeeded int, failed, notAttempted []string, fatal error) {
	j.succeeded = succeeded
	j.failedIDs = nonNil(slices.Clone(failed))
	j.notAttemptedIDs = nonNil(slices.Clone(notAttempted))
	j.completedAt = &now
	j.updatedAt = now
	if fatal != nil {
		j.errorMessage = fatal.Error()
	}

	switch {
	case len(failed) == 0 && len(notAttempted) == 0:
		j.status = JobCompleted
	case succeeded == 0:
		j.status = JobFailed
	default:
		j.status = JobPartial
	}
}

// Validate checks the job can be stored.
func (j *SyncJob) Validate() error {
	switch {
	case j.table == "":
		return fmt.Errorf("%w: sync job table is required", shared.ErrInvalidInput)
	case len(j.recordIDs) == 0:
		return fmt.Errorf("%w: sync job needs at least one record id", shared.ErrInvalidInput)
	case len(j.patch) == 0:
		return fmt.Errorf("%w: sync job patch is empty", shared.ErrInvalidInput)
	case !j.status.Valid():
		return fmt.Errorf("%w: unknown sync job status %q", shared.ErrInvalidInput, j.status)
	case j.succeeded < 0 || j.succeeded+len(j.failedIDs)+len(j.notAttemptedIDs) > len(j.recordIDs):
		return fmt.Errorf("%w: sync job counts exceed its %d records", shared.ErrInvalidInput, len(j.recordIDs))
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
