package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/tasks"
	"github.com/desertthunder/opsync/internal/views"
	"github.com/urfave/cli/v3"
)

var openBrowser = shared.OpenBrowser

// ViewsList prints the configured views of one service, or of all of them.
func (r *Runner) ViewsList(ctx context.Context, cmd *cli.Command) error {
	reg, err := r.registry()
	if err != nil {
		return err
	}

	tags := reg.Configured()
	if s := cmd.StringArg("service"); s != "" {
		tag, err := views.ParseServiceTag(s)
		if err != nil {
			return err
		}
		tags = []views.ServiceTag{tag}
	}

	if cmd.Bool("json") {
		out := make(map[views.ServiceTag][]views.View, len(tags))
		for _, tag := range tags {
			out[tag] = reg.List(tag)
		}
		return r.writeJSON(out, true)
	}

	for _, tag := range tags {
		r.writePlainHeader(tag.String())
		list := reg.List(tag)
		if len(list) == 0 {
			r.writePlain("  (no views configured)\n")
		}
		for _, v := range list {
			r.writePlain("  %-24s %s\n", v.Name, v.ID)
		}
	}
	return nil
}

// ViewsCounts counts the records of every view of a service.
func (r *Runner) ViewsCounts(ctx context.Context, cmd *cli.Command) error {
	tag, err := views.ParseServiceTag(cmd.StringArg("service"))
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}

	var counts map[string]int
	_, err = r.runWithProgress(func(progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error) {
		c, err := engine.CountViews(ctx, tag, progress)
		counts = c
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to count views: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(counts, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s view counts", tag))
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		r.writePlain("  %-24s %d\n", name, counts[name])
	}
	return nil
}

// ViewsOpen opens a view of a service in the browser.
func (r *Runner) ViewsOpen(ctx context.Context, cmd *cli.Command) error {
	tag, err := views.ParseServiceTag(cmd.StringArg("service"))
	if err != nil {
		return err
	}
	name := cmd.StringArg("view")
	if name == "" {
		return fmt.Errorf("%w: view name is required", shared.ErrMissingArgument)
	}

	reg, err := r.registry()
	if err != nil {
		return err
	}
	view, err := reg.Lookup(tag, name)
	if err != nil {
		return err
	}

	cfg := r.config.RecordStore
	if cfg.WebURL == "" {
		return fmt.Errorf("%w: record_store.web_url is empty", shared.ErrMissingConfig)
	}
	url := views.URL(cfg.WebURL, cfg.BaseID, cfg.Table(tag.String()), view.ID)

	if cmd.Bool("print") {
		return r.writePlain("%s\n", url)
	}

	r.logger.Info("opening view", "service", tag, "view", view.Name)
	if err := openBrowser(url); err != nil {
		r.writePlain("Open this URL in your browser:\n%s\n", url)
		return err
	}
	return nil
}
