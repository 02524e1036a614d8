package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/opsync/internal/batch"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.airtable.com"
	// MaxRecordsPerRequest is the store's limit on records in one write.
	MaxRecordsPerRequest = shared.MaxRecordsPerRequest
	// MaxPageSize is the store's limit on records in one list page.
	MaxPageSize = 100
)

var ErrTooManyRecords = errors.New("too many records in one request")

// RecordStore reads and writes records of one base.
//
// Requests are paced by a token bucket shared by every caller of the store, and
// each request gets its own timeout.
type RecordStore struct {
	api     *APIService
	baseID  string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *log.Logger
}

// RecordStoreOption configures a [RecordStore].
type RecordStoreOption func(*recordStoreOpts)

type recordStoreOpts struct {
	client *http.Client
	logger *log.Logger
}

// WithHTTPClient sets the client whose transport carries the bearer token.
func WithHTTPClient(c *http.Client) RecordStoreOption {
	return func(o *recordStoreOpts) { o.client = c }
}

func WithStoreLogger(l *log.Logger) RecordStoreOption {
	return func(o *recordStoreOpts) { o.logger = l }
}

// NewRecordStore creates a client for the base in cfg, authenticating with its personal access token.
func NewRecordStore(cfg shared.RecordStoreConfig, opts ...RecordStoreOption) (*RecordStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: record_store.api_key or %s", shared.ErrMissingCredentials, shared.APIKeyEnv)
	}
	if cfg.BaseID == "" {
		return nil, fmt.Errorf("%w: record_store.base_id is empty", shared.ErrMissingConfig)
	}

	o := recordStoreOpts{client: http.DefaultClient, logger: shared.DiscardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	authed := &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: o.client.Transport},
		Timeout:   o.client.Timeout,
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &RecordStore{
		api:     NewAPIService(cfg.BaseURL, authed),
		baseID:  cfg.BaseID,
		limiter: rate.NewLimiter(limit, 1),
		timeout: cfg.Timeout(),
		logger:  o.logger,
	}, nil
}

func (s *RecordStore) tablePath(table string) string {
	return fmt.Sprintf("/v0/%s/%s", url.PathEscape(s.baseID), url.PathEscape(table))
}

// call paces, bounds and performs one request, turning non-2xx responses into errors.
func (s *RecordStore) call(ctx context.Context, method, path string, body []byte) (*APIResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := s.api.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("record store request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(started))

	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

type updateRequest struct {
	Records []updateRecord `json:"records"`
}

type updateRecord struct {
	ID     string        `json:"id"`
	Fields records.Patch `json:"fields"`
}

// UpdateRecords writes patch to up to [MaxRecordsPerRequest] records in one PATCH.
func (s *RecordStore) UpdateRecords(ctx context.Context, table string, ids []string, patch records.Patch) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxRecordsPerRequest {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRecords, len(ids), MaxRecordsPerRequest)
	}

	req := updateRequest{Records: make([]updateRecord, len(ids))}
	for i, id := range ids {
		req.Records[i] = updateRecord{ID: id, Fields: patch}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	_, err = s.call(ctx, http.MethodPatch, s.tablePath(table), body)
	return err
}

// Dispatcher adapts [RecordStore.UpdateRecords] for table to the coordinator.
func (s *RecordStore) Dispatcher(table string) batch.Dispatcher {
	return func(ctx context.Context, chunk []string, patch records.Patch) error {
		return s.UpdateRecords(ctx, table, chunk, patch)
	}
}

// GetRecord fetches one record.
func (s *RecordStore) GetRecord(ctx context.Context, table, id string) (records.Record, error) {
	resp, err := s.call(ctx, http.MethodGet, s.tablePath(table)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return records.Record{}, err
	}
	return records.DecodeRecord(resp.Body)
}

// ListOptions filters [RecordStore.ListRecords].
type ListOptions struct {
	View       string
	Fields     []string
	Formula    string
	PageSize   int
	MaxRecords int
}

func (o ListOptions) query(offset string) string {
	q := url.Values{}
	if o.View != "" {
		q.Set("view", o.View)
	}
	for _, f := range o.Fields {
		q.Add("fields[]", f)
	}
	if o.Formula != "" {
		q.Set("filterByFormula", o.Formula)
	}
	if o.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(min(o.PageSize, MaxPageSize)))
	}
	if o.MaxRecords > 0 {
		q.Set("maxRecords", strconv.Itoa(o.MaxRecords))
	}
	if offset != "" {
		q.Set("offset", offset)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListRecords pages through a table, or one of its views, until the store stops returning an offset.
func (s *RecordStore) ListRecords(ctx context.Context, table string, opts ListOptions) ([]records.Record, error) {
	var all []records.Record
	offset := ""
	for {
		resp, err := s.call(ctx, http.MethodGet, s.tablePath(table)+opts.query(offset), nil)
		if err != nil {
			return nil, err
		}

		page, next, err := records.DecodeRecords(resp.Body)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if next == "" || (opts.MaxRecords > 0 && len(all) >= opts.MaxRecords) {
			break
		}
		offset = next
	}

	if opts.MaxRecords > 0 && len(all) > opts.MaxRecords {
		all = all[:opts.MaxRecords]
	}
	return all, nil
}

// FetchRecords reads the given ids one by one, in order.
func (s *RecordStore) FetchRecords(ctx context.Context, table string, ids []string) ([]records.Record, error) {
	out := make([]records.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetRecord(ctx, table, id)
		if err != nil {
			return out, fmt.Errorf("record %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountView returns the number of records visible in a view.
func (s *RecordStore) CountView(ctx context.Context, table, viewID string) (int, error) {
	recs, err := s.ListRecords(ctx, table, ListOptions{View: viewID, PageSize: MaxPageSize})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Get performs a raw authenticated GET relative to the API root.
func (s *RecordStore) Get(ctx context.Context, path string) (*APIResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return s.api.Get(ctx, path)
}
