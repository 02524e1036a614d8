package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// RecordedRequest is one request seen by a [FakeStore].
type RecordedRequest struct {
	Method string
	Table  string
	ID     string
	Query  url.Values
	IDs    []string // record ids of a PATCH body
}

// FakeStore is an in-memory record store speaking the REST dialect of the real one.
//
// Records are served in the nested shape unless Flat is set.
type FakeStore struct {
	BaseID string
	Token  string // expected bearer token; empty accepts any
	Flat   bool

	// Intercept runs before every request with its 1-based sequence number.
	// A non-zero status short-circuits the request with that status and body.
	Intercept func(r *http.Request, n int) (status int, body string)

	mu       sync.Mutex
	tables   map[string]map[string]map[string]any
	order    map[string][]string
	views    map[string][]string
	requests []RecordedRequest
	server   *httptest.Server
}

// NewFakeStore starts a FakeStore that is shut down when t ends.
func NewFakeStore(t *testing.T, baseID string) *FakeStore {
	t.Helper()
	f := &FakeStore{
		BaseID: baseID,
		tables: map[string]map[string]map[string]any{},
		order:  map[string][]string{},
		views:  map[string][]string{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the API root to configure clients with.
func (f *FakeStore) URL() string { return f.server.URL }

// Put stores a record, replacing any existing fields.
func (f *FakeStore) Put(table, id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables[table] == nil {
		f.tables[table] = map[string]map[string]any{}
	}
	if _, ok := f.tables[table][id]; !ok {
		f.order[table] = append(f.order[table], id)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	f.tables[table][id] = maps.Clone(fields)
}

// SetView makes the given ids the contents of viewID.
func (f *FakeStore) SetView(viewID string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[viewID] = slices.Clone(ids)
}

// Fields returns a copy of a record's fields, or nil when absent.
func (f *FakeStore) Fields(table, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.tables[table][id])
}

// Requests returns every request seen so far.
func (f *FakeStore) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// Count returns how many requests used method.
func (f *FakeStore) Count(method string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (f *FakeStore) serve(w http.ResponseWriter, r *http.Request) {
	table, id, ok := f.parsePath(r.URL.EscapedPath())
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown path")
		return
	}

	rec := RecordedRequest{Method: r.Method, Table: table, ID: id, Query: r.URL.Query()}
	body, _ := io.ReadAll(r.Body)
	var patch struct {
		Records []patchRecord `json:"records"`
	}
	if r.Method == http.MethodPatch {
		if err := json.Unmarshal(body, &patch); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", err.Error())
			return
		}
		for _, p := range patch.Records {
			rec.IDs = append(rec.IDs, p.ID)
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	n := len(f.requests)
	f.mu.Unlock()

	if f.Token != "" && r.Header.Get("Authorization") != "Bearer "+f.Token {
		writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "bad token")
		return
	}

	if f.Intercept != nil {
		if status, msg := f.Intercept(r, n); status != 0 {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, msg)
			return
		}
	}

	switch {
	case r.Method == http.MethodPatch && id == "":
		f.update(w, table, patch.Records)
	case r.Method == http.MethodGet && id != "":
		f.get(w, table, id)
	case r.Method == http.MethodGet:
		f.list(w, r, table)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method)
	}
}

func (f *FakeStore) parsePath(escaped string) (table, id string, ok bool) {
	parts := strings.Split(strings.Trim(escaped, "/"), "/")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != "v0" {
		return "", "", false
	}
	if base, _ := url.PathUnescape(parts[1]); base != f.BaseID {
		return "", "", false
	}
	table, err := url.PathUnescape(parts[2])
	if err != nil {
		return "", "", false
	}
	if len(parts) == 4 {
		id, _ = url.PathUnescape(parts[3])
	}
	return table, id, true
}

type patchRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (f *FakeStore) update(w http.ResponseWriter, table string, recs []patchRecord) {
	if len(recs) > 10 {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_RECORDS", "too many records")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range recs {
		if _, ok := f.tables[table][p.ID]; !ok {
			writeError(w, http.StatusNotFound, "MODEL_ID_NOT_FOUND", "record "+p.ID+" not found")
			return
		}
	}

	out := make([]map[string]any, 0, len(recs))
	for _, p := range recs {
		fields := f.tables[table][p.ID]
		for k, v := range p.Fields {
			if v == nil {
				delete(fields, k)
				continue
			}
			fields[k] = v
		}
		out = append(out, f.shape(p.ID, fields))
	}
	writeJSON(w, map[string]any{"records": out})
}

func (f *FakeStore) get(w http.ResponseWriter, table, id string) {
	f.mu.Lock()
	fields, ok := f.tables[table][id]
	var out map[string]any
	if ok {
		out = f.shape(id, fields)
	}
	f.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "record "+id+" not found")
		return
	}
	writeJSON(w, out)
}

func (f *FakeStore) list(w http.ResponseWriter, r *http.Request, table string) {
	q := r.URL.Query()
	pageSize := 100
	if n, err := strconv.Atoi(q.Get("pageSize")); err == nil && n > 0 {
		pageSize = n
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.order[table]
	if view := q.Get("view"); view != "" {
		viewIDs, ok := f.views[view]
		if !ok {
			writeError(w, http.StatusNotFound, "VIEW_NAME_NOT_FOUND", view)
			return
		}
		ids = viewIDs
	}

	end := min(offset+pageSize, len(ids))
	page := []map[string]any{}
	if offset < len(ids) {
		for _, id := range ids[offset:end] {
			if fields, ok := f.tables[table][id]; ok {
				page = append(page, f.shape(id, fields))
			}
		}
	}

	resp := map[string]any{"records": page}
	if end < len(ids) {
		resp["offset"] = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func (f *FakeStore) shape(id string, fields map[string]any) map[string]any {
	if f.Flat {
		out := maps.Clone(fields)
		out["id"] = id
		return out
	}
	return map[string]any{"id": id, "createdTime": "2024-01-01T00:00:00.000Z", "fields": maps.Clone(fields)}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"type":%q,"message":%q}}`, kind, msg)
}
