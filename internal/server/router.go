package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/opsync/internal/formatter"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/tasks"
	"github.com/desertthunder/opsync/internal/views"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	engine Engine
	logger *log.Logger
}

// BulkUpdateRequest is the body of POST /tables/{table}/bulk-update.
type BulkUpdateRequest struct {
	IDs    []string      `json:"ids"`
	Fields records.Patch `json:"fields"`
	Verify bool          `json:"verify"`
}

// JobSummary is one entry of GET /jobs.
type JobSummary struct {
	ID           string `json:"id"`
	Sequence     int    `json:"sequence"`
	ParentID     string `json:"parent_id,omitempty"`
	Table        string `json:"table"`
	Status       string `json:"status"`
	Total        int    `json:"total"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	NotAttempted int    `json:"not_attempted"`
	CreatedAt    string `json:"created_at"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": h.engine.Registry().Configured()})
}

func (h *handlers) listViews(w http.ResponseWriter, r *http.Request) {
	tag, err := views.ParseServiceTag(chi.URLParam(r, "service"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": tag, "views": h.engine.Registry().List(tag)})
}

func (h *handlers) countViews(w http.ResponseWriter, r *http.Request) {
	tag, err := views.ParseServiceTag(chi.URLParam(r, "service"))
	if err != nil {
		h.fail(w, err)
		return
	}

	counts, err := h.engine.CountViews(r.Context(), tag, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": tag, "counts": counts})
}

func (h *handlers) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	var body BulkUpdateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out, err := h.engine.Update(r.Context(), tasks.UpdateRequest{
		Table:  chi.URLParam(r, "table"),
		IDs:    body.IDs,
		Patch:  body.Fields,
		Verify: body.Verify,
	}, nil)
	h.writeOutcome(w, out, err)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{
		"status": q.Get("status"),
		"table":  q.Get("table"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		criteria["limit"] = n
	}

	jobs, err := h.engine.Jobs(criteria)
	if err != nil {
		h.fail(w, err)
		return
	}

	if s := q.Get("format"); s != "" {
		format, err := formatter.ParseFormat(s)
		if err != nil {
			h.fail(w, err)
			return
		}
		switch format {
		case formatter.Text:
			w.Header().Set("Content-Type", contentType(format))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(formatter.ExportJobsToText(jobs))
			return
		case formatter.JSON:
		default:
			writeError(w, http.StatusBadRequest, "job lists support json and txt only")
			return
		}
	}

	out := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobSummary{
			ID:           j.ID(),
			Sequence:     j.Sequence(),
			ParentID:     j.ParentID(),
			Table:        j.Table(),
			Status:       string(j.Status()),
			Total:        j.Total(),
			Succeeded:    j.Succeeded(),
			Failed:       len(j.FailedIDs()),
			NotAttempted: len(j.NotAttemptedIDs()),
			CreatedAt:    j.CreatedAt().UTC().Format(http.TimeFormat),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.Job(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}

	format := formatter.JSON
	if s := r.URL.Query().Get("format"); s != "" {
		if format, err = formatter.ParseFormat(s); err != nil {
			h.fail(w, err)
			return
		}
	}

	data, err := formatter.Export(formatter.NewReport(job, nil), format)
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) retryJob(w http.ResponseWriter, r *http.Request) {
	verify := r.URL.Query().Get("verify") == "true"
	out, err := h.engine.Retry(r.Context(), chi.URLParam(r, "id"), verify, nil)
	h.writeOutcome(w, out, err)
}

func (h *handlers) writeOutcome(w http.ResponseWriter, out *tasks.UpdateResult, err error) {
	if out == nil {
		h.fail(w, err)
		return
	}
	if err != nil {
		h.logger.Warn("bulk update finished with error", "error", err)
	}

	report := formatter.NewReport(out.Job, out.Result)
	report.AddVerification(out.Verification)
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrUnknownTable),
		errors.Is(err, shared.ErrUnknownService),
		errors.Is(err, shared.ErrUnknownView),
		errors.Is(err, shared.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidFlag):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func contentType(f formatter.Format) string {
	switch f {
	case formatter.CSV:
		return "text/csv; charset=utf-8"
	case formatter.Markdown:
		return "text/markdown; charset=utf-8"
	case formatter.Text:
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
