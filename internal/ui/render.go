package ui

import (
	"fmt"
	"strings"

	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/tasks"
)

const maxListed = 10

// Summary renders the outcome of an update with the palette's styles.
func Summary(out *tasks.UpdateResult) string {
	if out == nil || out.Result == nil {
		return styles.err.Render("No result available")
	}

	res := out.Result
	var title string
	switch {
	case res.OK():
		title = styles.ok.Render("✓ Bulk update complete")
	case res.Succeeded > 0:
		title = styles.warn.Render("! Bulk update partially applied")
	default:
		title = styles.err.Render("✗ Bulk update failed")
	}

	var b strings.Builder
	b.WriteString(title + "\n\n")
	if j := out.Job; j != nil {
		if j.ID() != "" {
			fmt.Fprintf(&b, "Job: %s\n", j.ID())
		}
		fmt.Fprintf(&b, "Table: %s\n", j.Table())
	}
	fmt.Fprintf(&b, "Result: %s\n", res.Summary())

	if len(res.Failed) > 0 {
		b.WriteString("\n" + styles.warn.Render("Failed:") + "\n" + bulletList(res.Failed))
	}
	if len(res.NotAttempted) > 0 {
		b.WriteString("\n" + styles.warn.Render("Not attempted:") + "\n" + bulletList(res.NotAttempted))
	}
	if res.FirstFatal != nil {
		b.WriteString("\n" + styles.err.Render("Error: "+res.FirstFatal.Error()) + "\n")
	}

	if v := out.Verification; v != nil {
		b.WriteString("\n" + verificationSummary(v))
	}

	if len(res.Failed)+len(res.NotAttempted) > 0 && out.Job != nil && out.Job.ID() != "" {
		b.WriteString("\n" + styles.help.Render(fmt.Sprintf("Run `opsync jobs retry %s` to retry pending records.", out.Job.ID())) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// JobLine renders one job for list output.
func JobLine(j *models.SyncJob) string {
	status := string(j.Status())
	switch j.Status() {
	case models.JobCompleted:
		status = styles.ok.Render(status)
	case models.JobPartial:
		status = styles.warn.Render(status)
	case models.JobFailed:
		status = styles.err.Render(status)
	}
	return fmt.Sprintf("#%-4d %s  %-12s %s  %d/%d", j.Sequence(), j.ID(), j.Table(), status, j.Succeeded(), j.Total())
}

func verificationSummary(v *tasks.Verification) string {
	if v.OK() {
		return styles.ok.Render(fmt.Sprintf("✓ Verified %d records", v.Checked)) + "\n"
	}

	var b strings.Builder
	b.WriteString(styles.warn.Render(fmt.Sprintf("Verified %d of %d records", len(v.Confirmed), v.Checked)) + "\n")
	for i, m := range v.Mismatches {
		if i == maxListed {
			fmt.Fprintf(&b, "  … and %d more\n", len(v.Mismatches)-maxListed)
			break
		}
		fmt.Fprintf(&b, "  • %s\n", m)
	}
	for _, id := range v.MissingRecords {
		fmt.Fprintf(&b, "  • %s: record not found\n", id)
	}
	for id, err := range v.Errors {
		fmt.Fprintf(&b, "  • %s: %v\n", id, err)
	}
	return b.String()
}

func bulletList(ids []string) string {
	var b strings.Builder
	for i, id := range ids {
		if i == maxListed {
			fmt.Fprintf(&b, "  … and %d more\n", len(ids)-maxListed)
			break
		}
		fmt.Fprintf(&b, "  • %s\n", id)
	}
	return b.String()
}
