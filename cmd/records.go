package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/opsync/internal/formatter"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/tasks"
	"github.com/desertthunder/opsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// RecordsUpdate applies the --set patch to every given record id.
func (r *Runner) RecordsUpdate(ctx context.Context, cmd *cli.Command) error {
	table := cmd.StringArg("table")
	if table == "" {
		return fmt.Errorf("%w: table is required", shared.ErrMissingArgument)
	}

	ids, err := collectIDs(cmd.StringSlice("id"), cmd.String("ids-file"), os.Stdin)
	if err != nil {
		return err
	}

	patch, err := records.ParsePatch(cmd.StringSlice("set"))
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}

	req := tasks.UpdateRequest{Table: table, IDs: ids, Patch: patch, Verify: cmd.Bool("verify")}
	r.logger.Info("bulk update requested", "table", table, "records", len(ids), "fields", strings.Join(patch.Keys(), ","))

	var out *tasks.UpdateResult
	if cmd.Bool("progress") {
		out, err = r.runInteractive(ctx, engine, req)
	} else {
		out, err = r.runWithProgress(func(progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error) {
			return engine.Update(ctx, req, progress)
		})
	}
	if err != nil {
		return err
	}

	return r.writeReport(out, format, cmd.String("output"))
}

// RecordsGet prints one record's fields.
func (r *Runner) RecordsGet(ctx context.Context, cmd *cli.Command) error {
	table := cmd.StringArg("table")
	id := cmd.StringArg("id")
	if table == "" || id == "" {
		return fmt.Errorf("%w: table and record id are required", shared.ErrMissingArgument)
	}
	if _, ok := records.SchemaFor(table); !ok {
		return fmt.Errorf("%w: %q", shared.ErrUnknownTable, table)
	}

	store, err := r.recordStore()
	if err != nil {
		return err
	}

	rec, err := store.GetRecord(ctx, r.config.RecordStore.Table(table), id)
	if err != nil {
		return fmt.Errorf("failed to fetch record: %w", err)
	}

	fields := rec.Fields
	if only := cmd.StringSlice("field"); len(only) > 0 {
		fields = make(map[string]any, len(only))
		for _, name := range only {
			if v := rec.Get(name); !v.IsMissing() {
				fields[name] = v.Raw()
			}
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"id": rec.ID, "createdTime": rec.CreatedTime, "fields": fields}, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s · %s", table, rec.ID))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		r.writePlain("%-20s %v\n", name, fields[name])
	}
	return nil
}

// runWithProgress runs fn, printing its progress updates as they arrive.
func (r *Runner) runWithProgress(fn func(progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error)) (*tasks.UpdateResult, error) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.Validating:
				r.writePlain("🔎 %s\n", update.Message)
			case tasks.Dispatching:
				if update.Step == 0 {
					r.writePlain("\n📤 %s\n", update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			case tasks.Verifying:
				if update.Step == 0 {
					r.writePlain("\n🔁 %s\n", update.Message)
				}
			case tasks.Counting:
				r.writePlain("📊 %s\n", update.Message)
			case tasks.Finished:
				r.writePlain("\n")
			}
		}
	}()

	result, err := fn(progressCh)
	close(progressCh)
	<-done

	return result, err
}

// runInteractive shows the bubbletea progress view while req runs.
func (r *Runner) runInteractive(ctx context.Context, engine ui.Engine, req tasks.UpdateRequest) (*tasks.UpdateResult, error) {
	fileLogger, err := shared.NewFileLogger("./tmp/opsync-tui.log")
	if err != nil {
		return nil, err
	}
	r.SetLogger(fileLogger)

	model := ui.NewUpdateModel(ctx, engine, req)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}
	return model.Result()
}

// writeReport prints the styled summary, or the report in format, to stdout or path.
func (r *Runner) writeReport(out *tasks.UpdateResult, format formatter.Format, path string) error {
	report := formatter.NewReport(out.Job, out.Result)
	report.AddVerification(out.Verification)

	if path != "" {
		written, err := formatter.WriteReport(report, format, path)
		if err != nil {
			return err
		}
		r.writePlain("%s\n", ui.Summary(out))
		r.writePlainln("✓ Report saved to %s", written)
		return nil
	}

	if format == formatter.Text {
		return r.writePlain("%s\n", ui.Summary(out))
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

// collectIDs merges ids from flags and an optional file, one id per line.
// A file of "-" reads stdin. Blank lines and # comments are skipped.
func collectIDs(flagIDs []string, file string, stdin io.Reader) ([]string, error) {
	var ids []string
	for _, v := range flagIDs {
		for id := range strings.SplitSeq(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	if file != "" {
		var src io.Reader = stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, fmt.Errorf("failed to open ids file: %w", err)
			}
			defer f.Close()
			src = f
		}

		scanner := bufio.NewScanner(src)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ids = append(ids, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read ids: %w", err)
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: pass --id or --ids-file", shared.ErrMissingArgument)
	}
	return ids, nil
}
