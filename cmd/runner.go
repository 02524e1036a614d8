package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/opsync/internal/batch"
	"github.com/desertthunder/opsync/internal/cache"
	"github.com/desertthunder/opsync/internal/repositories"
	"github.com/desertthunder/opsync/internal/services"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/tasks"
	"github.com/desertthunder/opsync/internal/views"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The record store, database and engine are built on first use so that commands
// such as `setup` work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	metrics    *prometheus.Registry

	store  *services.RecordStore
	db     *sql.DB
	cache  cache.Cache
	engine *tasks.RecordEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		metrics:    prometheus.NewRegistry(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, recordsCommand, jobsCommand, viewsCommand, cacheCommand, apiCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies --debug.
//
// A missing file keeps the embedded defaults; a malformed one is an error.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	if path == "" {
		return ctx, nil
	}
	r.configPath = path

	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return ctx, nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

// SetLogger replaces the logger of the runner and of anything it builds later.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database and cache.
func (r *Runner) Close() error {
	var firstErr error
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			firstErr = err
		}
		r.cache = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.db = nil
	}
	return firstErr
}

// recordStore builds the authenticated client of the configured base.
func (r *Runner) recordStore() (*services.RecordStore, error) {
	if r.store != nil {
		return r.store, nil
	}

	store, err := services.NewRecordStore(r.config.RecordStore,
		services.WithHTTPClient(r.httpClient),
		services.WithStoreLogger(shared.WithLogger(r.logger, "component", "record_store")),
	)
	if err != nil {
		return nil, err
	}
	r.store = store
	return store, nil
}

func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	return db, nil
}

func (r *Runner) countCache() (cache.Cache, error) {
	if r.cache != nil {
		return r.cache, nil
	}

	c, err := cache.New(r.config.Cache)
	if err != nil {
		return nil, err
	}
	r.cache = c
	return c, nil
}

func (r *Runner) registry() (*views.Registry, error) {
	return views.FromConfig(r.config.Views)
}

func (r *Runner) coordinator() *batch.Coordinator {
	b := r.config.Batch
	policy := batch.DefaultPolicy()
	policy.MaxRetries = b.MaxRetries
	policy.BaseDelay = b.BaseDelay()
	policy.RetryServerErrors = b.RetryServerErrors
	policy.RetryTimeouts = b.RetryTimeouts
	policy.HonorRetryAfter = b.HonorRetryAfter

	return batch.New(
		batch.WithChunkSize(b.ChunkSize),
		batch.WithFanOut(b.FanOut),
		batch.WithPolicy(policy),
		batch.WithLogger(shared.WithLogger(r.logger, "component", "batch")),
		batch.WithMetrics(batch.NewMetrics(r.metrics)),
	)
}

// Engine wires the record store, job history, view registry and count cache into a [tasks.RecordEngine].
func (r *Runner) Engine() (*tasks.RecordEngine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	store, err := r.recordStore()
	if err != nil {
		return nil, err
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	reg, err := r.registry()
	if err != nil {
		return nil, err
	}
	c, err := r.countCache()
	if err != nil {
		return nil, err
	}

	r.engine = tasks.NewRecordEngine(store, r.coordinator(),
		tasks.WithJobs(repositories.NewSyncJobRepository(db)),
		tasks.WithTables(r.config.RecordStore.Tables),
		tasks.WithRegistry(reg),
		tasks.WithCountCache(c, r.config.Cache.TTL()),
		tasks.WithEngineLogger(shared.WithLogger(r.logger, "component", "engine")),
	)
	return r.engine, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return err
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
