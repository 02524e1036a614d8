package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/views"
	"github.com/urfave/cli/v3"
)

// CacheClear drops the cached view counts of one service, or of every configured one.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
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

	c, err := r.countCache()
	if err != nil {
		return err
	}

	for _, tag := range tags {
		if err := views.Invalidate(ctx, reg, tag, c); err != nil {
			return fmt.Errorf("failed to clear cached counts: %w", err)
		}
		r.logger.Info("cleared cached counts", "service", tag)
	}

	return r.writePlain("✓ Cleared cached counts for %d %s\n", len(tags), shared.Pluralize(len(tags), "service"))
}

// cacheCommand handles the view count cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage cached view counts",
		Commands: []*cli.Command{
			{
				Name:      "clear",
				Usage:     "Drop cached view counts",
				ArgsUsage: "[service]",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Action: r.CacheClear,
			},
		},
	}
}
