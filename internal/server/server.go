// package server contains middleware & handlers for the opsync web service
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/tasks"
	"github.com/desertthunder/opsync/internal/views"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Engine is what the HTTP surface needs from the sync engine.
type Engine interface {
	tasks.SyncEngine
	Job(id string) (*models.SyncJob, error)
	Jobs(criteria map[string]any) ([]*models.SyncJob, error)
	Registry() *views.Registry
}

// Option configures [NewServer].
type Option func(*serverConfig)

type serverConfig struct {
	middlewares []Middleware
	gatherer    prometheus.Gatherer
	logger      *log.Logger
}

// WithMiddlewares adds middleware to the router, outermost first.
func WithMiddlewares(mw ...Middleware) Option {
	return func(cfg *serverConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(cfg *serverConfig) { cfg.gatherer = g }
}

func WithLogger(l *log.Logger) Option {
	return func(cfg *serverConfig) { cfg.logger = l }
}

// NewServer creates the router for engine.
func NewServer(engine Engine, opts ...Option) *chi.Mux {
	cfg := &serverConfig{logger: shared.DiscardLogger()}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	h := &handlers{engine: engine, logger: cfg.logger}

	r.Get("/healthz", h.health)
	r.Route("/views", func(r chi.Router) {
		r.Get("/", h.listServices)
		r.Get("/{service}", h.listViews)
		r.Get("/{service}/counts", h.countViews)
	})
	r.Post("/tables/{table}/bulk-update", h.bulkUpdate)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Get("/{id}", h.getJob)
		r.Post("/{id}/retry", h.retryJob)
	})

	if cfg.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
