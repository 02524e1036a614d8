package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/shared"
	tu "github.com/desertthunder/opsync/internal/testing"
)

// newTestRunner returns a runner wired to a fake record store and an in-memory database.
func newTestRunner(t *testing.T) (*Runner, *tu.FakeStore, *bytes.Buffer) {
	t.Helper()
	fake := tu.NewFakeStore(t, "appTest")

	config := shared.DefaultConfig()
	config.RecordStore.BaseURL = fake.URL()
	config.RecordStore.BaseID = "appTest"
	config.RecordStore.APIKey = "patTest"
	config.RecordStore.RateLimit = 0
	config.Batch.BaseDelayMS = 1
	config.Database.Path = ":memory:"
	config.Database.MaxOpenConns = 1
	config.Database.MaxIdleConns = 1
	config.Cache.Backend = "memory"

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: output,
	})
	t.Cleanup(func() { runner.Close() })

	return runner, fake, output
}

// run executes args against a fresh app, with --config pointing at a file that does not exist.
func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	missing := filepath.Join(t.TempDir(), "none.toml")
	argv := append([]string{"opsync", "--config", missing}, args...)
	return newApp(r).Run(context.Background(), argv)
}

func seedDeals(fake *tu.FakeStore, ids ...string) {
	for _, id := range ids {
		fake.Put("Deals", id, map[string]any{"Name": "Deal " + id, "Stage": "Lead"})
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.metrics == nil {
				t.Error("expected a metrics registry")
			}
		})

		t.Run("engine requires credentials", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.RecordStore.APIKey = ""
			runner := NewRunner(RunnerOpts{Config: config, Output: io.Discard})

			if _, err := runner.Engine(); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("Before", func(t *testing.T) {
		t.Run("loads config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := shared.CreateConfigFile(path); err != nil {
				t.Fatalf("failed to create config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Output: io.Discard, Logger: shared.NewLogger(io.Discard)})
			before := runner.config
			if err := newApp(runner).Run(context.Background(), []string{"opsync", "--config", path, "views", "list", "soundcloud"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.config == before {
				t.Error("expected config to be replaced by the loaded file")
			}
			if runner.configPath != path {
				t.Errorf("configPath = %q, want %q", runner.configPath, path)
			}
		})

		t.Run("rejects invalid config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[batch]\nchunk_size = 0\n"), 0644); err != nil {
				t.Fatal(err)
			}

			runner := NewRunner(RunnerOpts{Output: io.Discard, Logger: shared.NewLogger(io.Discard)})
			err := newApp(runner).Run(context.Background(), []string{"opsync", "--config", path, "views", "list"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestCollectIDs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ids.txt")
	if err := os.WriteFile(file, []byte("recC\n\n# comment\n  recD  \n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		flags   []string
		file    string
		stdin   string
		want    []string
		wantErr error
	}{
		{name: "Flags", flags: []string{"recA", "recB"}, want: []string{"recA", "recB"}},
		{name: "Comma Separated", flags: []string{"recA, recB,"}, want: []string{"recA", "recB"}},
		{name: "File", file: file, want: []string{"recC", "recD"}},
		{name: "Stdin", file: "-", stdin: "recE\nrecF\n", want: []string{"recE", "recF"}},
		{name: "Flags Then File", flags: []string{"recA"}, file: file, want: []string{"recA", "recC", "recD"}},
		{name: "None", wantErr: shared.ErrMissingArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectIDs(tt.flags, tt.file, strings.NewReader(tt.stdin))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("Missing File", func(t *testing.T) {
		if _, err := collectIDs(nil, filepath.Join(dir, "nope.txt"), nil); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestRecordsCommands(t *testing.T) {
	t.Run("update writes every record", func(t *testing.T) {
		runner, fake, output := newTestRunner(t)
		seedDeals(fake, "recA", "recB", "recC")

		err := run(t, runner, "records", "update", "deals", "--id", "recA,recB", "--id", "recC", "--set", "Stage=Won", "--set", "Value=5000")
		if err != nil {
			t.Fatalf("records update failed: %v", err)
		}

		for _, id := range []string{"recA", "recB", "recC"} {
			fields := fake.Fields("Deals", id)
			if fields["Stage"] != "Won" || fields["Value"] != 5000.0 {
				t.Errorf("%s not updated: %v", id, fields)
			}
		}
		if !strings.Contains(output.String(), "Bulk update complete") {
			t.Errorf("expected summary, got %s", output.String())
		}
	})

	t.Run("update with verify and json report", func(t *testing.T) {
		runner, fake, output := newTestRunner(t)
		seedDeals(fake, "recA")

		err := run(t, runner, "records", "update", "deals", "--id", "recA", "--set", "Stage=Won", "--verify", "--format", "json")
		if err != nil {
			t.Fatalf("records update failed: %v", err)
		}

		out := output.String()
		if !strings.Contains(out, `"outcome": "succeeded"`) || !strings.Contains(out, `"verified": true`) {
			t.Errorf("unexpected report %s", out)
		}
	})

	t.Run("update writes report file", func(t *testing.T) {
		runner, fake, _ := newTestRunner(t)
		seedDeals(fake, "recA")
		path := filepath.Join(t.TempDir(), "report.csv")

		err := run(t, runner, "records", "update", "deals", "--id", "recA", "--set", "Stage=Won", "--format", "csv", "--output", path)
		if err != nil {
			t.Fatalf("records update failed: %v", err)
		}

		tu.AssertFileExists(t, path)
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "recA,succeeded") {
			t.Errorf("unexpected csv %s", content)
		}
	})

	t.Run("update rejects invalid input before writing", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr error
		}{
			{"Unknown Table", []string{"records", "update", "leads", "--id", "recA", "--set", "Stage=Won"}, shared.ErrUnknownTable},
			{"Schema Violation", []string{"records", "update", "deals", "--id", "recA", "--set", "Stage=Maybe"}, shared.ErrInvalidInput},
			{"Bad Assignment", []string{"records", "update", "deals", "--id", "recA", "--set", "Stage"}, shared.ErrInvalidInput},
			{"No IDs", []string{"records", "update", "deals", "--set", "Stage=Won"}, shared.ErrMissingArgument},
			{"Bad Format", []string{"records", "update", "deals", "--id", "recA", "--set", "Stage=Won", "--format", "xml"}, shared.ErrInvalidFlag},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				runner, fake, _ := newTestRunner(t)
				seedDeals(fake, "recA")

				if err := run(t, runner, tt.args...); !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				if fake.Count(http.MethodPatch) != 0 {
					t.Error("expected no writes")
				}
			})
		}
	})

	t.Run("get prints fields", func(t *testing.T) {
		runner, fake, output := newTestRunner(t)
		fake.Put("Deals", "recA", map[string]any{"Name": "Spring Push", "Stage": "Lead", "Value": 1200.0})

		if err := run(t, runner, "records", "get", "deals", "recA", "--field", "Name", "--field", "Value", "--json"); err != nil {
			t.Fatalf("records get failed: %v", err)
		}

		out := output.String()
		if !strings.Contains(out, `"Name": "Spring Push"`) || strings.Contains(out, "Stage") {
			t.Errorf("unexpected output %s", out)
		}
	})

	t.Run("get missing record", func(t *testing.T) {
		runner, _, _ := newTestRunner(t)
		if err := run(t, runner, "records", "get", "deals", "recX"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})
}

func TestJobsCommands(t *testing.T) {
	runner, fake, output := newTestRunner(t)
	ids := []string{"rec01", "rec02", "rec03", "rec04", "rec05", "rec06", "rec07", "rec08", "rec09", "rec10", "rec11", "rec12"}
	seedDeals(fake, ids...)

	patches := 0
	fake.Intercept = func(r *http.Request, n int) (int, string) {
		if r.Method != http.MethodPatch {
			return 0, ""
		}
		patches++
		if patches == 2 {
			return http.StatusUnprocessableEntity, `{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"bad"}}`
		}
		return 0, ""
	}

	err := run(t, runner, "records", "update", "deals", "--id", strings.Join(ids, ","), "--set", "Stage=Won")
	if err != nil {
		t.Fatalf("records update failed: %v", err)
	}
	if !strings.Contains(output.String(), "partially applied") {
		t.Fatalf("expected partial summary, got %s", output.String())
	}

	jobs, err := runner.engine.Jobs(map[string]any{})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected one job, got %d (%v)", len(jobs), err)
	}
	job := jobs[0]
	if job.Status() != models.JobPartial || len(job.FailedIDs()) != 2 {
		t.Fatalf("unexpected job %s with %v failed", job.Status(), job.FailedIDs())
	}

	t.Run("list", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "jobs", "list", "--status", "partial"); err != nil {
			t.Fatalf("jobs list failed: %v", err)
		}
		if !strings.Contains(output.String(), job.ID()) {
			t.Errorf("expected job in list, got %s", output.String())
		}
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		if err := run(t, runner, "jobs", "list", "--status", "done"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("show", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "jobs", "show", job.ID(), "--format", "markdown"); err != nil {
			t.Fatalf("jobs show failed: %v", err)
		}
		out := output.String()
		if !strings.Contains(out, "# Bulk update "+job.ID()) || !strings.Contains(out, "rec11") {
			t.Errorf("unexpected report %s", out)
		}
	})

	t.Run("show unknown job", func(t *testing.T) {
		if err := run(t, runner, "jobs", "show", "nope"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("retry", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "jobs", "retry", job.ID()); err != nil {
			t.Fatalf("jobs retry failed: %v", err)
		}
		if !strings.Contains(output.String(), "Bulk update complete") {
			t.Errorf("expected complete summary, got %s", output.String())
		}
		for _, id := range ids {
			if fake.Fields("Deals", id)["Stage"] != "Won" {
				t.Errorf("%s not updated after retry", id)
			}
		}

		children, _ := runner.engine.Jobs(map[string]any{"parent_id": job.ID()})
		if len(children) != 1 || children[0].Total() != 2 {
			t.Errorf("expected one retry job over 2 records, got %d", len(children))
		}
	})

	t.Run("retry completed job", func(t *testing.T) {
		children, _ := runner.engine.Jobs(map[string]any{"parent_id": job.ID()})
		if err := run(t, runner, "jobs", "retry", children[0].ID()); !errors.Is(err, shared.ErrNothingToRetry) {
			t.Errorf("expected ErrNothingToRetry, got %v", err)
		}
	})
}

func TestViewsCommands(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		if err := run(t, runner, "views", "list", "spotify"); err != nil {
			t.Fatalf("views list failed: %v", err)
		}
		if !strings.Contains(output.String(), "Awaiting Payment") || !strings.Contains(output.String(), "viwSpotifyUnpaid") {
			t.Errorf("unexpected output %s", output.String())
		}
	})

	t.Run("list unknown service", func(t *testing.T) {
		runner, _, _ := newTestRunner(t)
		if err := run(t, runner, "views", "list", "tiktok"); !errors.Is(err, shared.ErrUnknownService) {
			t.Errorf("expected ErrUnknownService, got %v", err)
		}
	})

	t.Run("counts", func(t *testing.T) {
		runner, fake, output := newTestRunner(t)
		for _, id := range []string{"rec1", "rec2", "rec3"} {
			fake.Put("Spotify Campaigns", id, map[string]any{"Name": id})
		}
		fake.SetView("viwSpotifyAll", "rec1", "rec2", "rec3")
		fake.SetView("viwSpotifyActive", "rec1")
		fake.SetView("viwSpotifyUnpaid", "rec2", "rec3")
		fake.SetView("viwSpotifyDone")

		if err := run(t, runner, "views", "counts", "spotify", "--json"); err != nil {
			t.Fatalf("views counts failed: %v", err)
		}
		out := output.String()
		for _, want := range []string{`"All Campaigns": 3`, `"Active": 1`, `"Awaiting Payment": 2`, `"Completed": 0`} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %s in %s", want, out)
			}
		}

		gets := fake.Count(http.MethodGet)
		if err := run(t, runner, "views", "counts", "spotify"); err != nil {
			t.Fatalf("views counts failed: %v", err)
		}
		if fake.Count(http.MethodGet) != gets {
			t.Error("expected second count to be served from cache")
		}

		if err := run(t, runner, "cache", "clear", "spotify"); err != nil {
			t.Fatalf("cache clear failed: %v", err)
		}
		if !strings.Contains(output.String(), "Cleared cached counts for 1 service") {
			t.Errorf("unexpected output %s", output.String())
		}
		if err := run(t, runner, "views", "counts", "spotify"); err != nil {
			t.Fatalf("views counts failed: %v", err)
		}
		if fake.Count(http.MethodGet) == gets {
			t.Error("expected counts to be fetched again after clearing the cache")
		}
	})

	t.Run("open", func(t *testing.T) {
		runner, _, output := newTestRunner(t)

		var opened string
		openBrowser = func(u string) error { opened = u; return nil }
		t.Cleanup(func() { openBrowser = shared.OpenBrowser })

		if err := run(t, runner, "views", "open", "spotify", "Active"); err != nil {
			t.Fatalf("views open failed: %v", err)
		}
		want := "https://airtable.com/appTest/Spotify%20Campaigns/viwSpotifyActive"
		if opened != want {
			t.Errorf("opened %q, want %q", opened, want)
		}

		if err := run(t, runner, "views", "open", "spotify", "viwSpotifyDone", "--print"); err != nil {
			t.Fatalf("views open --print failed: %v", err)
		}
		if !strings.Contains(output.String(), "viwSpotifyDone") {
			t.Errorf("expected printed URL, got %s", output.String())
		}
	})

	t.Run("open unknown view", func(t *testing.T) {
		runner, _, _ := newTestRunner(t)
		if err := run(t, runner, "views", "open", "instagram", "Nope", "--print"); !errors.Is(err, shared.ErrUnknownView) {
			t.Errorf("expected ErrUnknownView, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("database", func(t *testing.T) {
		runner, _, output := newTestRunner(t)
		runner.config.Database.Path = filepath.Join(t.TempDir(), "opsync.db")

		if err := run(t, runner, "setup", "database"); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, runner.config.Database.Path)
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output %s", output.String())
		}
	})

	t.Run("config", func(t *testing.T) {
		runner, _, _ := newTestRunner(t)
		path := filepath.Join(t.TempDir(), "config.toml")

		err := newApp(runner).Run(context.Background(), []string{"opsync", "--config", path, "setup", "config"})
		if err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, path)

		if err := newApp(runner).Run(context.Background(), []string{"opsync", "--config", path, "setup", "config"}); err == nil {
			t.Error("expected error when the config file already exists")
		}
	})
}

func TestAPIGet(t *testing.T) {
	runner, fake, output := newTestRunner(t)
	fake.Put("Deals", "recA", map[string]any{"Name": "Spring Push"})

	if err := run(t, runner, "api", "get", "Deals/recA"); err != nil {
		t.Fatalf("api get failed: %v", err)
	}
	if !strings.Contains(output.String(), "Spring Push") {
		t.Errorf("unexpected output %s", output.String())
	}

	if err := run(t, runner, "api", "get", "/v0/appTest/Deals/recX"); !errors.Is(err, shared.ErrAPIRequest) {
		t.Errorf("expected ErrAPIRequest, got %v", err)
	}
}
