package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
)

const syncJobColumns = `id, sequence, table_name, patch, record_ids, status, succeeded, failed_ids,
	not_attempted_ids, error_message, parent_id, started_at, completed_at, created_at, updated_at, deleted_at`

// SyncJobRepository implements [models.Repository] for [models.SyncJob] persistence.
//
// The patch and id lists are stored as JSON text.
type SyncJobRepository struct {
	db *sql.DB
}

// NewSyncJobRepository creates a new [SyncJobRepository] with the given database connection
func NewSyncJobRepository(db *sql.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a new job with a generated ID and sequence
func (r *SyncJobRepository) Create(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "sync_jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	cols, err := encodeJob(job)
	if err != nil {
		return err
	}

	id := shared.GenerateID()
	query := `
		INSERT INTO sync_jobs (` + syncJobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err = r.db.Exec(query,
		id, sequence, job.Table(), cols.patch, cols.recordIDs, string(job.Status()), job.Succeeded(),
		cols.failedIDs, cols.notAttemptedIDs, nullString(job.ErrorMessage()), nullString(job.ParentID()),
		nullTime(job.StartedAt()), nullTime(job.CompletedAt()), job.CreatedAt(), job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync job: %w", err)
	}

	job.SetID(id)
	job.SetSequence(sequence)
	return nil
}

// Get retrieves a job by ID, excluding soft-deleted jobs
func (r *SyncJobRepository) Get(id string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ? AND deleted_at IS NULL`

	job, err := scanJob(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync job: %w", err)
	}
	return job, nil
}

// Update writes the job's progress and outcome. The table, patch and ids are immutable.
func (r *SyncJobRepository) Update(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	cols, err := encodeJob(job)
	if err != nil {
		return err
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	query := `
		UPDATE sync_jobs
		SET status = ?, succeeded = ?, failed_ids = ?, not_attempted_ids = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(job.Status()), job.Succeeded(), cols.failedIDs, cols.notAttemptedIDs, nullString(job.ErrorMessage()),
		nullTime(job.StartedAt()), nullTime(job.CompletedAt()), now, job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, job.ID())
	}

	return nil
}

// Delete soft-deletes a job by ID
func (r *SyncJobRepository) Delete(id string) error {
	query := `
		UPDATE sync_jobs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}

	return nil
}

// List retrieves jobs newest first. Supported criteria are "status", "table",
// "parent_id" (strings) and "limit" (int).
func (r *SyncJobRepository) List(criteria map[string]any) ([]*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE deleted_at IS NULL`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if table, ok := criteria["table"].(string); ok && table != "" {
		query += " AND table_name = ?"
		args = append(args, table)
	}
	if parent, ok := criteria["parent_id"].(string); ok && parent != "" {
		query += " AND parent_id = ?"
		args = append(args, parent)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

type jobColumns struct {
	patch, recordIDs, failedIDs, notAttemptedIDs string
}

func encodeJob(job *models.SyncJob) (jobColumns, error) {
	var cols jobColumns
	for _, c := range []struct {
		dst *string
		v   any
	}{
		{&cols.patch, job.Patch()},
		{&cols.recordIDs, job.RecordIDs()},
		{&cols.failedIDs, job.FailedIDs()},
		{&cols.notAttemptedIDs, job.NotAttemptedIDs()},
	} {
		b, err := json.Marshal(c.v)
		if err != nil {
			return cols, fmt.Errorf("failed to encode sync job: %w", err)
		}
		*c.dst = string(b)
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.SyncJob, error) {
	var (
		id, table, patchJSON, idsJSON, status string
		failedJSON, notAttemptedJSON          string
		sequence, succeeded                   int
		errorMessage, parentID                sql.NullString
		startedAt, completedAt, deletedAt     sql.NullTime
		createdAt, updatedAt                  time.Time
	)

	err := row.Scan(&id, &sequence, &table, &patchJSON, &idsJSON, &status, &succeeded, &failedJSON,
		&notAttemptedJSON, &errorMessage, &parentID, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	var (
		patch                     records.Patch
		ids, failed, notAttempted []string
	)
	for _, c := range []struct {
		src string
		dst any
	}{
		{patchJSON, &patch},
		{idsJSON, &ids},
		{failedJSON, &failed},
		{notAttemptedJSON, &notAttempted},
	} {
		if err := json.Unmarshal([]byte(c.src), c.dst); err != nil {
			return nil, fmt.Errorf("failed to decode sync job %s: %w", id, err)
		}
	}

	job := models.NewSyncJob(table, ids, patch)
	job.SetID(id)
	job.SetSequence(sequence)
	job.SetStatus(models.JobStatus(status))
	job.SetSucceeded(succeeded)
	job.SetFailedIDs(failed)
	job.SetNotAttemptedIDs(notAttempted)
	job.SetErrorMessage(errorMessage.String)
	job.SetParentID(parentID.String)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		job.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		job.SetDeletedAt(&deletedAt.Time)
	}
	return job, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
