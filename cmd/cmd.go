// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Report format (json, csv, markdown, txt)",
		Value:   value,
	}
}

// recordsCommand handles bulk writes and single-record reads
func recordsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "records",
		Aliases: []string{"rec"},
		Usage:   "Read and bulk-update records",
		Commands: []*cli.Command{
			{
				Name:      "update",
				Usage:     "Apply one field patch to many records",
				ArgsUsage: "<table>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "table"},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Record id to update (repeatable, comma separated)",
					},
					&cli.StringFlag{
						Name:  "ids-file",
						Usage: "File with one record id per line (- for stdin)",
					},
					&cli.StringSliceFlag{
						Name:     "set",
						Aliases:  []string{"s"},
						Usage:    "Field assignment Field=value; values are parsed as JSON when possible",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Read records back and confirm every patched field",
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Show an interactive progress view",
					},
					formatFlag("txt"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to a file instead of stdout",
					},
				},
				Action: r.RecordsUpdate,
			},
			{
				Name:      "get",
				Usage:     "Fetch one record",
				ArgsUsage: "<table> <id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "table"},
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "field",
						Usage: "Only print these fields",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.RecordsGet,
			},
		},
	}
}

// jobsCommand handles the bulk update history
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and retry past bulk updates",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent bulk updates, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only jobs with this status (pending, running, completed, partial, failed)",
					},
					&cli.StringFlag{
						Name:  "table",
						Usage: "Only jobs of this table",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.JobsList,
			},
			{
				Name:      "show",
				Usage:     "Show the per-record outcome of a job",
				ArgsUsage: "<job-id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					formatFlag("txt"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to a file instead of stdout",
					},
				},
				Action: r.JobsShow,
			},
			{
				Name:      "retry",
				Usage:     "Re-run the failed and not-attempted records of a job",
				ArgsUsage: "<job-id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Read records back and confirm every patched field",
					},
					formatFlag("txt"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to a file instead of stdout",
					},
				},
				Action: r.JobsRetry,
			},
		},
	}
}

// viewsCommand handles the per-service view registry
func viewsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "views",
		Usage: "List, count and open the configured views of a service",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List configured views",
				ArgsUsage: "[service]",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ViewsList,
			},
			{
				Name:      "counts",
				Usage:     "Count the records of every view of a service",
				ArgsUsage: "<service>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ViewsCounts,
			},
			{
				Name:      "open",
				Usage:     "Open a view in the browser",
				ArgsUsage: "<service> <view>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
					&cli.StringArg{Name: "view"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "print",
						Usage: "Print the URL instead of opening it",
					},
				},
				Action: r.ViewsOpen,
			},
		},
	}
}

// setupCommand handles setup operations for the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
		},
	}
}

// serveCommand runs the HTTP surface for the dashboard front-end
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the bulk update API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for browsing and retrying jobs.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse bulk update history and retry failed records",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "Verify records after retries",
			},
		},
		Action: r.TUI,
	}
}
