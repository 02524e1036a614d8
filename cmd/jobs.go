package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/opsync/internal/formatter"
	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/tasks"
	"github.com/desertthunder/opsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// JobsList lists recorded bulk updates, newest first.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if s := cmd.String("status"); s != "" {
		status := models.JobStatus(s)
		if !status.Valid() {
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidFlag, s)
		}
		criteria["status"] = string(status)
	}
	if t := cmd.String("table"); t != "" {
		criteria["table"] = t
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}

	jobs, err := engine.Jobs(criteria)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if cmd.Bool("json") {
		reports := make([]*formatter.Report, len(jobs))
		for i, j := range jobs {
			reports[i] = formatter.NewReport(j, nil)
		}
		return r.writeJSON(reports, true)
	}

	if len(jobs) == 0 {
		return r.writePlain("No bulk updates recorded.\n")
	}

	r.writePlainHeader(fmt.Sprintf("%d %s", len(jobs), shared.Pluralize(len(jobs), "job")))
	for _, j := range jobs {
		r.writePlain("%s\n", ui.JobLine(j))
	}
	return nil
}

// JobsShow prints the per-record outcome of one job.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}

	job, err := engine.Job(id)
	if err != nil {
		return err
	}

	report := formatter.NewReport(job, nil)
	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteReport(report, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Report saved to %s\n", written)
	}

	data, err := formatter.Export(report, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// JobsRetry re-runs the failed and not-attempted records of a job with its stored patch.
func (r *Runner) JobsRetry(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}

	r.logger.Info("retrying job", "job", id)
	out, err := r.runWithProgress(func(progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error) {
		return engine.Retry(ctx, id, cmd.Bool("verify"), progress)
	})
	if err != nil {
		return err
	}

	return r.writeReport(out, format, cmd.String("output"))
}
