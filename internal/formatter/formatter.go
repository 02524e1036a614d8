// package formatter renders bulk update reports in several formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/opsync/internal/batch"
	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/tasks"
)

// Format names an output format.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "txt"
)

// Formats lists every supported format.
func Formats() []Format { return []Format{JSON, CSV, Markdown, Text} }

// ParseFormat accepts a format name or its common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "txt", "text":
		return Text, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
}

// Ext is the file extension written for f.
func (f Format) Ext() string {
	if f == Markdown {
		return "md"
	}
	return string(f)
}

// Outcome is what happened to one record.
type Outcome string

const (
	Succeeded    Outcome = "succeeded"
	Failed       Outcome = "failed"
	NotAttempted Outcome = "not_attempted"
)

// RecordOutcome is one row of a [Report].
type RecordOutcome struct {
	ID       string  `json:"id"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
	Verified *bool   `json:"verified,omitempty"`
}

// Report is the per-record account of one bulk update.
type Report struct {
	JobID        string          `json:"job_id,omitempty"`
	ParentID     string          `json:"parent_id,omitempty"`
	Table        string          `json:"table"`
	Status       string          `json:"status"`
	Summary      string          `json:"summary"`
	Patch        records.Patch   `json:"patch"`
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	NotAttempted int             `json:"not_attempted"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	Records      []RecordOutcome `json:"records"`
	Mismatches   []string        `json:"mismatches,omitempty"`
}

// NewReport builds a report from a job. When res is given its per-chunk errors
// are attached to the failed records; otherwise the job's error message is used.
func NewReport(job *models.SyncJob, res *batch.BulkResult) *Report {
	failed := job.FailedIDs()
	notAttempted := job.NotAttemptedIDs()

	r := &Report{
		JobID:        job.ID(),
		ParentID:     job.ParentID(),
		Table:        job.Table(),
		Status:       string(job.Status()),
		Patch:        job.Patch(),
		Succeeded:    job.Succeeded(),
		Failed:       len(failed),
		NotAttempted: len(notAttempted),
		StartedAt:    job.StartedAt(),
		CompletedAt:  job.CompletedAt(),
		Error:        job.ErrorMessage(),
		Summary:      fmt.Sprintf("%d succeeded, %d failed, %d not attempted", job.Succeeded(), len(failed), len(notAttempted)),
	}

	errs := map[string]string{}
	if res != nil {
		for _, c := range res.Chunks {
			if c.Err == nil {
				continue
			}
			for _, id := range c.IDs {
				errs[id] = c.Err.Error()
			}
		}
	}

	for _, id := range job.RecordIDs() {
		row := RecordOutcome{ID: id, Outcome: Succeeded}
		switch {
		case slices.Contains(failed, id):
			row.Outcome = Failed
			row.Error = errs[id]
			if row.Error == "" {
				row.Error = job.ErrorMessage()
			}
		case slices.Contains(notAttempted, id):
			row.Outcome = NotAttempted
		}
		r.Records = append(r.Records, row)
	}

	return r
}

// AddVerification marks each record confirmed or not by a read-back pass.
func (r *Report) AddVerification(v *tasks.Verification) {
	if v == nil {
		return
	}

	bad := map[string]bool{}
	for _, m := range v.Mismatches {
		bad[m.ID] = true
		r.Mismatches = append(r.Mismatches, m.String())
	}
	for _, id := range v.MissingRecords {
		bad[id] = true
		r.Mismatches = append(r.Mismatches, id+": record not found")
	}
	for _, id := range slices.Sorted(maps.Keys(v.Errors)) {
		bad[id] = true
		r.Mismatches = append(r.Mismatches, fmt.Sprintf("%s: %v", id, v.Errors[id]))
	}

	checked := map[string]bool{}
	for _, id := range v.Confirmed {
		checked[id] = true
	}
	for id := range bad {
		checked[id] = true
	}

	for i := range r.Records {
		id := r.Records[i].ID
		if !checked[id] {
			continue
		}
		ok := !bad[id]
		r.Records[i].Verified = &ok
	}
}

func (r *Report) patchString() string {
	parts := make([]string, 0, len(r.Patch))
	for _, k := range r.Patch.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, r.Patch[k]))
	}
	return strings.Join(parts, ", ")
}

// ExportToJSON renders the report as indented JSON.
func ExportToJSON(r *Report) ([]byte, error) {
	return shared.MarshalJSON(r, true)
}

// ExportToCSV renders one row per record with columns: ID, Outcome, Error, Verified
func ExportToCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Outcome", "Error", "Verified"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range r.Records {
		verified := ""
		if row.Verified != nil {
			verified = fmt.Sprint(*row.Verified)
		}
		if err := writer.Write([]string{row.ID, string(row.Outcome), row.Error, verified}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a summary header and a record table.
func ExportToMarkdown(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	title := "Bulk update"
	if r.JobID != "" {
		title += " " + r.JobID
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Table**: %s\n", r.Table)
	fmt.Fprintf(&buf, "**Status**: %s\n", r.Status)
	fmt.Fprintf(&buf, "**Result**: %s\n", r.Summary)
	fmt.Fprintf(&buf, "**Patch**: %s\n", r.patchString())
	if r.ParentID != "" {
		fmt.Fprintf(&buf, "**Retry of**: %s\n", r.ParentID)
	}
	if r.Error != "" {
		fmt.Fprintf(&buf, "**Error**: %s\n", r.Error)
	}

	buf.WriteString("\n## Records\n\n")
	buf.WriteString("| Record | Outcome | Error |\n")
	buf.WriteString("|--------|---------|-------|\n")
	for _, row := range r.Records {
		fmt.Fprintf(&buf, "| %s | %s | %s |\n", row.ID, row.Outcome, strings.ReplaceAll(row.Error, "|", `\|`))
	}

	if len(r.Mismatches) > 0 {
		buf.WriteString("\n## Verification\n\n")
		for _, m := range r.Mismatches {
			fmt.Fprintf(&buf, "- %s\n", m)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders the report as plain text
func ExportToText(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	if r.JobID != "" {
		fmt.Fprintf(&buf, "Job: %s\n", r.JobID)
	}
	fmt.Fprintf(&buf, "Table: %s\n", r.Table)
	fmt.Fprintf(&buf, "Status: %s\n", r.Status)
	fmt.Fprintf(&buf, "Result: %s\n", r.Summary)
	fmt.Fprintf(&buf, "Patch: %s\n\n", r.patchString())

	for _, row := range r.Records {
		if row.Outcome == Succeeded {
			continue
		}
		line := fmt.Sprintf("%s %s", row.Outcome, row.ID)
		if row.Error != "" {
			line += ": " + row.Error
		}
		buf.WriteString(line + "\n")
	}
	for _, m := range r.Mismatches {
		fmt.Fprintf(&buf, "mismatch %s\n", m)
	}

	return buf.Bytes(), nil
}

// Export renders r in format f.
func Export(r *Report, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return ExportToJSON(r)
	case CSV:
		return ExportToCSV(r)
	case Markdown:
		return ExportToMarkdown(r)
	case Text:
		return ExportToText(r)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, f)
}

// WriteReport writes r in format f.
//
// Defaults to job_{id}.{ext} as the filename.
func WriteReport(r *Report, f Format, path string) (string, error) {
	if path == "" {
		name := r.JobID
		if name == "" {
			name = "report"
		}
		path = fmt.Sprintf("job_%s.%s", name, f.Ext())
	}

	data, err := Export(r, f)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s report: %w", f, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

// ExportJobsToText renders one line per job, newest first as given.
func ExportJobsToText(jobs []*models.SyncJob) []byte {
	var buf bytes.Buffer
	for _, j := range jobs {
		created := j.CreatedAt().Format(time.DateTime)
		fmt.Fprintf(&buf, "#%-4d %s  %-10s %-10s %d/%d  %s\n",
			j.Sequence(), j.ID(), j.Table(), j.Status(), j.Succeeded(), j.Total(), created)
	}
	return buf.Bytes()
}
