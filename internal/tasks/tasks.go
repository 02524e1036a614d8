// package tasks implements bulk record updates against the remote record store.
//
// The core abstraction is SyncEngine, which validates, dispatches, verifies and records bulk updates.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/opsync/internal/batch"
	"github.com/desertthunder/opsync/internal/cache"
	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/views"
)

// RecordStore is the part of the remote store the engine needs.
type RecordStore interface {
	UpdateRecords(ctx context.Context, table string, ids []string, patch records.Patch) error
	GetRecord(ctx context.Context, table, id string) (records.Record, error)
	CountView(ctx context.Context, table, viewID string) (int, error)
}

// UpdateRequest describes one bulk update.
type UpdateRequest struct {
	Table    string        // logical table name, e.g. "payments"
	IDs      []string      // record ids in the order they should be written
	Patch    records.Patch // absolute field values applied to every record
	Verify   bool          // read records back after writing
	ParentID string        // job being retried, if any
}

// UpdateResult contains everything a bulk update produced.
type UpdateResult struct {
	Job          *models.SyncJob
	Result       *batch.BulkResult
	Verification *Verification // nil unless requested
}

// Mismatch is one field that did not read back as written.
type Mismatch struct {
	ID      string
	Field   string
	Want    any
	Got     any
	Missing bool // field absent from the record
}

func (m Mismatch) String() string {
	if m.Missing {
		return fmt.Sprintf("%s: %s missing, want %v", m.ID, m.Field, m.Want)
	}
	return fmt.Sprintf("%s: %s = %v, want %v", m.ID, m.Field, m.Got, m.Want)
}

// Verification is the outcome of reading records back.
type Verification struct {
	Checked        int
	Confirmed      []string
	Mismatches     []Mismatch
	MissingRecords []string // records the store no longer has
	Errors         map[string]error
}

// OK reports whether every record read back as written.
func (v *Verification) OK() bool {
	return len(v.Mismatches) == 0 && len(v.MissingRecords) == 0 && len(v.Errors) == 0
}

// SyncEngine defines bulk update operations.
type SyncEngine interface {
	// Update validates the patch against the table's schema and writes it to every id.
	Update(ctx context.Context, req UpdateRequest, progress chan<- ProgressUpdate) (*UpdateResult, error)

	// Retry re-runs the failed and not-attempted ids of a stored job.
	Retry(ctx context.Context, jobID string, verify bool, progress chan<- ProgressUpdate) (*UpdateResult, error)

	// Verify reads ids back and compares every patched field.
	Verify(ctx context.Context, table string, ids []string, patch records.Patch, progress chan<- ProgressUpdate) (*Verification, error)

	// CountViews returns the record count of every configured view of a service.
	CountViews(ctx context.Context, tag views.ServiceTag, progress chan<- ProgressUpdate) (map[string]int, error)
}

// RecordEngine implements SyncEngine against a [RecordStore].
type RecordEngine struct {
	store    RecordStore
	coord    *batch.Coordinator
	jobs     models.Repository[*models.SyncJob]
	tables   map[string]string
	registry *views.Registry
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// EngineOption configures a [RecordEngine].
type EngineOption func(*RecordEngine)

// WithJobs records every run in repo.
func WithJobs(repo models.Repository[*models.SyncJob]) EngineOption {
	return func(e *RecordEngine) { e.jobs = repo }
}

// WithTables maps logical table names to the store's table names.
func WithTables(tables map[string]string) EngineOption {
	return func(e *RecordEngine) { e.tables = tables }
}

func WithRegistry(reg *views.Registry) EngineOption {
	return func(e *RecordEngine) { e.registry = reg }
}

// WithCountCache caches view counts in c for ttl.
func WithCountCache(c cache.Cache, ttl time.Duration) EngineOption {
	return func(e *RecordEngine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *RecordEngine) { e.logger = l }
}

// WithClock replaces time.Now for job timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *RecordEngine) { e.now = now }
}

// NewRecordEngine creates a RecordEngine writing through store with coord.
func NewRecordEngine(store RecordStore, coord *batch.Coordinator, opts ...EngineOption) *RecordEngine {
	e := &RecordEngine{
		store:    store,
		coord:    coord,
		registry: views.DefaultRegistry(),
		logger:   shared.DiscardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *RecordEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (e *RecordEngine) table(name string) string {
	if t, ok := e.tables[name]; ok && t != "" {
		return t
	}
	return name
}

// Update validates, dispatches and records one bulk update.
//
// Validation failures return an error before anything is written. Once dispatch
// starts, remote failures are reported in the result and the error is nil.
func (e *RecordEngine) Update(ctx context.Context, req UpdateRequest, progress chan<- ProgressUpdate) (*UpdateResult, error) {
	if e.store == nil || e.coord == nil {
		return nil, fmt.Errorf("%w: record store not initialized", shared.ErrServiceUnavailable)
	}

	schema, ok := records.SchemaFor(req.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownTable, req.Table)
	}

	ids, err := normalizeIDs(req.IDs)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, validateUpdate(req.Table, len(ids)))
	if err := schema.ValidatePatch(req.Patch); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	chunks, err := batch.Chunk(ids, e.coord.ChunkSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	job := models.NewSyncJob(req.Table, ids, req.Patch)
	job.SetParentID(req.ParentID)
	job.Start(e.now())
	if e.jobs != nil {
		if err := e.jobs.Create(job); err != nil {
			return nil, fmt.Errorf("failed to record sync job: %w", err)
		}
	}

	logger := shared.WithLogger(e.logger, "table", req.Table, "job", job.ID())
	logger.Info("bulk update started", "records", len(ids), "fields", strings.Join(req.Patch.Keys(), ","))

	total := len(chunks)
	e.sendProgress(progress, dispatchStartUpdate(total))

	done := 0
	coord := e.coord.Observe(func(res batch.ChunkResult) {
		done++
		e.sendProgress(progress, chunkUpdate(done, total, res))
	})

	table := e.table(req.Table)
	res, err := coord.BulkUpdate(ctx, ids, req.Patch, func(ctx context.Context, chunk []string, patch records.Patch) error {
		return e.store.UpdateRecords(ctx, table, chunk, patch)
	})
	if err != nil {
		job.Finish(e.now(), 0, nil, ids, err)
		e.saveOutcome(job, logger)
		logger.Error("bulk update aborted", "error", err)
		return nil, err
	}

	job.Finish(e.now(), res.Succeeded, res.Failed, res.NotAttempted, firstError(res))
	e.saveOutcome(job, logger)
	logger.Info("bulk update finished", "status", job.Status(), "summary", res.Summary())

	out := &UpdateResult{Job: job, Result: res}

	if res.Succeeded > 0 {
		e.invalidateCounts(ctx, req.Table, logger)
	}

	if req.Verify && res.Succeeded > 0 {
		v, err := e.Verify(ctx, req.Table, res.SucceededIDs, req.Patch, progress)
		out.Verification = v
		if err != nil {
			return out, err
		}
	}

	e.sendProgress(progress, finishedUpdate(res))
	return out, nil
}

func (e *RecordEngine) saveOutcome(job *models.SyncJob, logger *log.Logger) {
	if e.jobs == nil {
		return
	}
	if err := e.jobs.Update(job); err != nil {
		logger.Error("failed to record sync job outcome", "error", err)
	}
}

// Retry re-runs the failed and not-attempted ids of jobID as a new job.
func (e *RecordEngine) Retry(ctx context.Context, jobID string, verify bool, progress chan<- ProgressUpdate) (*UpdateResult, error) {
	if e.jobs == nil {
		return nil, fmt.Errorf("%w: job history not configured", shared.ErrServiceUnavailable)
	}

	job, err := e.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status().Terminal() {
		return nil, fmt.Errorf("%w: job %s is %s", shared.ErrNothingToRetry, jobID, job.Status())
	}

	pending := job.PendingIDs()
	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: job %s has no failed records", shared.ErrNothingToRetry, jobID)
	}

	return e.Update(ctx, UpdateRequest{
		Table:    job.Table(),
		IDs:      pending,
		Patch:    job.Patch(),
		Verify:   verify,
		ParentID: job.ID(),
	}, progress)
}

// Verify reads every id back and compares each patched field.
//
// A nil patch value expects the field to be cleared. Read failures other than
// not found are kept per id; only cancellation aborts the pass.
func (e *RecordEngine) Verify(ctx context.Context, table string, ids []string, patch records.Patch, progress chan<- ProgressUpdate) (*Verification, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: record store not initialized", shared.ErrServiceUnavailable)
	}

	remote := e.table(table)
	v := &Verification{Errors: map[string]error{}}
	keys := patch.Keys()

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		e.sendProgress(progress, verifyUpdate(i+1, len(ids), id))

		rec, err := e.store.GetRecord(ctx, remote, id)
		v.Checked++
		switch {
		case errors.Is(err, shared.ErrRecordNotFound):
			v.MissingRecords = append(v.MissingRecords, id)
			continue
		case err != nil:
			v.Errors[id] = err
			continue
		}

		before := len(v.Mismatches)
		for _, key := range keys {
			if m, ok := compareField(rec, key, patch[key]); !ok {
				v.Mismatches = append(v.Mismatches, m)
			}
		}
		if len(v.Mismatches) == before {
			v.Confirmed = append(v.Confirmed, id)
		}
	}

	return v, nil
}

// CountViews counts every view configured for tag, through the count cache when one is set.
func (e *RecordEngine) CountViews(ctx context.Context, tag views.ServiceTag, progress chan<- ProgressUpdate) (map[string]int, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownService, tag)
	}
	if e.store == nil {
		return nil, fmt.Errorf("%w: record store not initialized", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, countUpdate(tag, len(e.registry.ViewsFor(tag))))
	return views.CountAll(ctx, e.registry, tag, e.store, views.CountOptions{
		Table:  e.table(string(tag)),
		Cache:  e.cache,
		TTL:    e.cacheTTL,
		Logger: e.logger,
	})
}

// Job returns a stored job.
func (e *RecordEngine) Job(id string) (*models.SyncJob, error) {
	if e.jobs == nil {
		return nil, fmt.Errorf("%w: job history not configured", shared.ErrServiceUnavailable)
	}
	return e.jobs.Get(id)
}

// Jobs lists stored jobs matching criteria.
func (e *RecordEngine) Jobs(criteria map[string]any) ([]*models.SyncJob, error) {
	if e.jobs == nil {
		return nil, fmt.Errorf("%w: job history not configured", shared.ErrServiceUnavailable)
	}
	return e.jobs.List(criteria)
}

// Registry returns the view registry in use.
func (e *RecordEngine) Registry() *views.Registry { return e.registry }

func (e *RecordEngine) invalidateCounts(ctx context.Context, table string, logger *log.Logger) {
	if e.cache == nil {
		return
	}
	tag := views.ServiceTag(table)
	if !tag.Valid() {
		return
	}
	if err := views.Invalidate(ctx, e.registry, tag, e.cache); err != nil {
		logger.Warn("failed to drop cached view counts", "service", tag, "error", err)
	}
}

func compareField(rec records.Record, key string, want any) (Mismatch, bool) {
	got := rec.Get(key)
	m := Mismatch{ID: rec.ID, Field: key, Want: want, Got: got.Raw()}

	if want == nil {
		return m, got.IsMissing() || got.IsEmpty()
	}
	if got.IsMissing() {
		if b, ok := want.(bool); ok && !b {
			// The store omits false checkboxes.
			return m, true
		}
		m.Missing = true
		return m, false
	}
	return m, got.Equal(want)
}

// normalizeIDs trims ids and drops repeats, keeping the first occurrence.
func normalizeIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no record ids", shared.ErrMissingArgument)
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: record id %d is blank", shared.ErrInvalidInput, i+1)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// firstError prefers the fatal error, then the first failed chunk's error in input order.
func firstError(res *batch.BulkResult) error {
	if res.FirstFatal != nil {
		return res.FirstFatal
	}
	for _, c := range res.Chunks {
		if c.Status.Failed() && c.Err != nil {
			return c.Err
		}
	}
	return nil
}
