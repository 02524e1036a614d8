package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the record store's per-request record limit.
const DefaultChunkSize = 10

// Dispatcher writes patch to every record in chunk with a single remote call.
//
// The context it receives is detached from the caller's cancellation, so a call
// that has started always runs to completion. Per-call timeouts are the
// dispatcher's own concern.
type Dispatcher func(ctx context.Context, chunk []string, patch records.Patch) error

// SleepFunc waits for d or until ctx is done, returning ctx's error in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ChunkStatus is the terminal state of one chunk.
type ChunkStatus int

const (
	ChunkSucceeded ChunkStatus = iota
	ChunkFatal
	ChunkExhausted
	ChunkInterrupted
	ChunkNotAttempted
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkSucceeded:
		return "succeeded"
	case ChunkFatal:
		return "fatal"
	case ChunkExhausted:
		return "retries_exhausted"
	case ChunkInterrupted:
		return "interrupted"
	case ChunkNotAttempted:
		return "not_attempted"
	default:
		return "unknown"
	}
}

// Failed reports whether the chunk's ids count as failed.
func (s ChunkStatus) Failed() bool {
	return s == ChunkFatal || s == ChunkExhausted || s == ChunkInterrupted
}

// ChunkResult is the outcome of one chunk.
type ChunkResult struct {
	Index    int
	IDs      []string
	Status   ChunkStatus
	Attempts int
	Err      error
}

// BulkResult aggregates chunk outcomes. Every id list follows input order.
type BulkResult struct {
	Succeeded    int
	SucceededIDs []string
	Failed       []string
	NotAttempted []string
	FirstFatal   error // fatal error of the earliest fatal chunk
	Chunks       []ChunkResult
}

// Total is the number of ids the call was given.
func (r *BulkResult) Total() int {
	return r.Succeeded + len(r.Failed) + len(r.NotAttempted)
}

// OK reports whether every id was written.
func (r *BulkResult) OK() bool {
	return len(r.Failed) == 0 && len(r.NotAttempted) == 0
}

// Pending returns failed then not-attempted ids, the set a follow-up run should cover.
func (r *BulkResult) Pending() []string {
	ids := make([]string, 0, len(r.Failed)+len(r.NotAttempted))
	ids = append(ids, r.Failed...)
	return append(ids, r.NotAttempted...)
}

// Summary renders the outcome for people.
func (r *BulkResult) Summary() string {
	return fmt.Sprintf("%d succeeded, %d failed, %d not attempted", r.Succeeded, len(r.Failed), len(r.NotAttempted))
}

// Coordinator runs chunked bulk updates with per-chunk retry.
//
// A Coordinator holds no per-call state and may be shared between goroutines.
type Coordinator struct {
	chunkSize int
	fanOut    int
	policy    Policy
	logger    *log.Logger
	metrics   *Metrics
	sleep     SleepFunc
	observer  func(ChunkResult)
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithChunkSize sets the maximum ids per dispatch.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) { c.chunkSize = n }
}

// WithFanOut sets how many chunks may be in flight at once. Values below one mean serial.
func WithFanOut(n int) Option {
	return func(c *Coordinator) { c.fanOut = max(n, 1) }
}

func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithSleep replaces the backoff wait, letting tests record delays instead of sleeping.
func WithSleep(fn SleepFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New creates a Coordinator: chunks of [DefaultChunkSize], serial fan-out and [DefaultPolicy].
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		chunkSize: DefaultChunkSize,
		fanOut:    1,
		policy:    DefaultPolicy(),
		logger:    shared.DiscardLogger(),
		sleep:     Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe returns a copy of c that calls fn once per finished chunk.
//
// Calls are serialized but arrive in completion order, which differs from input
// order when fan-out exceeds one.
func (c *Coordinator) Observe(fn func(ChunkResult)) *Coordinator {
	cp := *c
	cp.observer = fn
	return &cp
}

// Policy returns the retry policy in use.
func (c *Coordinator) Policy() Policy { return c.policy }

// ChunkSize returns the maximum ids per dispatch.
func (c *Coordinator) ChunkSize() int { return c.chunkSize }

// BulkUpdate applies patch to every id, chunk by chunk.
//
// Only invalid input returns an error. Remote failures of any kind are reported
// in the result, and one chunk's failure never stops the others.
func (c *Coordinator) BulkUpdate(ctx context.Context, ids []string, patch records.Patch, dispatch Dispatcher) (*BulkResult, error) {
	if dispatch == nil {
		return nil, ErrNilDispatcher
	}

	chunks, err := Chunk(ids, c.chunkSize)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	results := make([]ChunkResult, len(chunks))

	var mu sync.Mutex
	notify := func(res ChunkResult) {
		c.metrics.observeChunk(res)
		if c.observer == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		c.observer(res)
	}

	g := new(errgroup.Group)
	g.SetLimit(c.fanOut)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = c.runChunk(ctx, i, chunk, patch, dispatch)
			notify(results[i])
			return nil
		})
	}
	_ = g.Wait()

	result := aggregate(results)
	c.metrics.observeRun(time.Since(started))
	c.logger.Info("bulk update finished", "chunks", len(chunks), "summary", result.Summary())
	return result, nil
}

func (c *Coordinator) runChunk(ctx context.Context, index int, ids []string, patch records.Patch, dispatch Dispatcher) ChunkResult {
	res := ChunkResult{Index: index, IDs: ids}

	if err := ctx.Err(); err != nil {
		res.Status = ChunkNotAttempted
		res.Err = fmt.Errorf("%w: %w", ErrNotAttempted, err)
		return res
	}

	callCtx := context.WithoutCancel(ctx)
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		err := dispatch(callCtx, ids, patch.Clone())
		if err == nil {
			res.Status = ChunkSucceeded
			return res
		}

		if !c.policy.Retryable(err) {
			c.logger.Warn("chunk rejected", "chunk", index, "records", len(ids), "err", err)
			res.Status = ChunkFatal
			res.Err = err
			return res
		}

		if !c.policy.ShouldRetry(err, attempt) {
			c.logger.Warn("chunk gave up", "chunk", index, "attempts", res.Attempts, "err", err)
			res.Status = ChunkExhausted
			res.Err = &RetriesExhaustedError{Attempts: res.Attempts, Last: err}
			return res
		}

		delay := c.policy.WaitFor(err, attempt)
		c.logger.Debug("retrying chunk", "chunk", index, "attempt", res.Attempts, "delay", delay, "err", err)
		c.metrics.retried()

		waitErr := c.sleep(ctx, delay)
		if waitErr == nil {
			waitErr = ctx.Err()
		}
		if waitErr != nil {
			res.Status = ChunkInterrupted
			res.Err = fmt.Errorf("%w after %d attempts: %w", ErrInterrupted, res.Attempts, waitErr)
			return res
		}
	}
}

func aggregate(chunks []ChunkResult) *BulkResult {
	result := &BulkResult{
		SucceededIDs: []string{},
		Failed:       []string{},
		NotAttempted: []string{},
		Chunks:       chunks,
	}

	for _, ch := range chunks {
		switch {
		case ch.Status == ChunkSucceeded:
			result.Succeeded += len(ch.IDs)
			result.SucceededIDs = append(result.SucceededIDs, ch.IDs...)
		case ch.Status == ChunkNotAttempted:
			result.NotAttempted = append(result.NotAttempted, ch.IDs...)
		case ch.Status.Failed():
			result.Failed = append(result.Failed, ch.IDs...)
			if ch.Status == ChunkFatal && result.FirstFatal == nil {
				result.FirstFatal = ch.Err
			}
		}
	}

	return result
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
