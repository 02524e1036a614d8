package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/opsync/internal/batch"
	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/records"
	"github.com/desertthunder/opsync/internal/tasks"
)

type mockEngine struct {
	jobs     []*models.SyncJob
	jobsErr  error
	updates  []tasks.ProgressUpdate
	result   *tasks.UpdateResult
	err      error
	retried  string
	received tasks.UpdateRequest
}

func (e *mockEngine) Update(ctx context.Context, req tasks.UpdateRequest, progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error) {
	e.received = req
	for _, u := range e.updates {
		progress <- u
	}
	return e.result, e.err
}

func (e *mockEngine) Retry(ctx context.Context, jobID string, verify bool, progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error) {
	e.retried = jobID
	for _, u := range e.updates {
		progress <- u
	}
	return e.result, e.err
}

func (e *mockEngine) Jobs(criteria map[string]any) ([]*models.SyncJob, error) {
	return e.jobs, e.jobsErr
}

func partialJob() *models.SyncJob {
	j := models.NewSyncJob("payments", []string{"rec1", "rec2", "rec3"}, records.Patch{"Paid": true})
	j.SetID("job-1")
	j.SetSequence(7)
	j.Finish(j.CreatedAt(), 1, []string{"rec2"}, []string{"rec3"}, errors.New("422 INVALID_VALUE"))
	return j
}

func partialResult() *tasks.UpdateResult {
	return &tasks.UpdateResult{
		Job: partialJob(),
		Result: &batch.BulkResult{
			Succeeded:    1,
			SucceededIDs: []string{"rec1"},
			Failed:       []string{"rec2"},
			NotAttempted: []string{"rec3"},
			FirstFatal:   errors.New("422 INVALID_VALUE"),
		},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain feeds a run's messages back into the model until it completes.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for range 100 {
		msg, ok := cmd().(Msg)
		if !ok {
			t.Fatalf("expected Msg, got %T", msg)
		}
		_, cmd = m.Update(msg)
		if msg.kind == MsgRunComplete {
			return
		}
	}
	t.Fatal("run never completed")
}

func TestJobList(t *testing.T) {
	t.Run("Loads Jobs", func(t *testing.T) {
		engine := &mockEngine{jobs: []*models.SyncJob{partialJob()}}
		m := NewModel(context.Background(), engine, false)

		if !strings.Contains(m.View(), "Loading jobs") {
			t.Errorf("expected loading view, got %q", m.View())
		}

		msg := m.Init()()
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		m.Update(msg)

		if !m.listReady || len(m.jobs) != 1 {
			t.Fatalf("expected one job loaded, got %d", len(m.jobs))
		}
		if !strings.Contains(m.View(), "Sync Jobs") {
			t.Errorf("expected list title in view")
		}
	})

	t.Run("Empty History", func(t *testing.T) {
		m := NewModel(context.Background(), &mockEngine{}, false)
		m.Update(m.Init()())
		if !strings.Contains(m.View(), "No bulk updates yet") {
			t.Errorf("unexpected view %q", m.View())
		}
	})

	t.Run("Fetch Error", func(t *testing.T) {
		m := NewModel(context.Background(), &mockEngine{jobsErr: errors.New("database is locked")}, false)
		m.Update(m.Init()())
		if !strings.Contains(m.View(), "database is locked") {
			t.Errorf("expected error in view, got %q", m.View())
		}
	})

	t.Run("Quit", func(t *testing.T) {
		m := NewModel(context.Background(), &mockEngine{}, false)
		_, cmd := m.Update(runes("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected QuitMsg")
		}
	})
}

func TestRetryFlow(t *testing.T) {
	engine := &mockEngine{
		jobs: []*models.SyncJob{partialJob()},
		updates: []tasks.ProgressUpdate{
			{Phase: tasks.Dispatching, Step: 0, Total: 1},
			{Phase: tasks.Dispatching, Step: 1, Total: 1, Message: "chunk 1/1: 2 succeeded"},
		},
		result: partialResult(),
	}
	m := NewModel(context.Background(), engine, true)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.Init()())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.view != JobDetailView {
		t.Fatalf("expected detail view, got %v", m.view)
	}
	view := m.View()
	for _, want := range []string{"Job #7", "rec2", "rec3", "422 INVALID_VALUE"} {
		if !strings.Contains(view, want) {
			t.Errorf("detail view missing %q", want)
		}
	}

	m.Update(runes("r"))
	if m.view != ConfirmView {
		t.Fatalf("expected confirm view, got %v", m.view)
	}
	if !strings.Contains(m.View(), "Retry 2 records") {
		t.Errorf("unexpected confirm view %q", m.View())
	}

	m.Update(runes("n"))
	if m.view != JobDetailView {
		t.Fatalf("expected n to return to detail view, got %v", m.view)
	}

	m.Update(runes("r"))
	m.Update(runes("y"))
	if m.view != ProgressView {
		t.Fatalf("expected progress view, got %v", m.view)
	}

	drain(t, m, m.waitForProgress())

	if engine.retried != "job-1" {
		t.Errorf("expected retry of job-1, got %q", engine.retried)
	}
	if m.view != ResultView {
		t.Fatalf("expected result view, got %v", m.view)
	}
	if !strings.Contains(m.View(), "partially applied") {
		t.Errorf("unexpected result view %q", m.View())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.view != JobListView || m.result != nil {
		t.Errorf("expected esc to return to a fresh job list")
	}
}

func TestDetailWithoutPending(t *testing.T) {
	j := models.NewSyncJob("deals", []string{"rec1"}, records.Patch{"Stage": "Won"})
	j.Finish(j.CreatedAt(), 1, nil, nil, nil)

	m := NewModel(context.Background(), &mockEngine{jobs: []*models.SyncJob{j}}, false)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.Init()())
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(runes("r"))

	if m.view != JobDetailView {
		t.Errorf("expected retry to be ignored for completed job, got %v", m.view)
	}
}

func TestUpdateModel(t *testing.T) {
	t.Run("Tracks Chunk Progress", func(t *testing.T) {
		m := NewUpdateModel(context.Background(), &mockEngine{}, tasks.UpdateRequest{Table: "deals"})
		m.applyProgress(tasks.ProgressUpdate{Phase: tasks.Dispatching, Step: 0, Total: 4})
		m.applyProgress(tasks.ProgressUpdate{Phase: tasks.Dispatching, Step: 1, Total: 4, Message: "chunk 1/4"})

		if got := m.percent(); got != 0.25 {
			t.Errorf("percent = %v, want 0.25", got)
		}
		view := m.View()
		if !strings.Contains(view, "Writing chunks (1/4)") || !strings.Contains(view, "chunk 1/4") {
			t.Errorf("unexpected progress view %q", view)
		}
	})

	t.Run("Runs Request", func(t *testing.T) {
		engine := &mockEngine{
			updates: []tasks.ProgressUpdate{{Phase: tasks.Validating}},
			result: &tasks.UpdateResult{
				Job:    models.NewSyncJob("deals", []string{"rec1"}, records.Patch{"Stage": "Won"}),
				Result: &batch.BulkResult{Succeeded: 1, SucceededIDs: []string{"rec1"}},
			},
		}
		req := tasks.UpdateRequest{Table: "deals", IDs: []string{"rec1"}, Patch: records.Patch{"Stage": "Won"}}
		m := NewUpdateModel(context.Background(), engine, req)

		drain(t, m, m.start(m.pending))

		if engine.received.Table != "deals" {
			t.Errorf("expected request to reach engine, got %+v", engine.received)
		}
		res, err := m.Result()
		if err != nil || res == nil || !res.Result.OK() {
			t.Fatalf("Result() = %+v, %v", res, err)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != ResultView {
			t.Errorf("standalone result view should ignore esc, got %v", m.view)
		}
	})

	t.Run("Run Error", func(t *testing.T) {
		engine := &mockEngine{err: errors.New("unknown table")}
		m := NewUpdateModel(context.Background(), engine, tasks.UpdateRequest{Table: "nope"})
		drain(t, m, m.start(m.pending))

		if !strings.Contains(m.View(), "Update failed: unknown table") {
			t.Errorf("unexpected view %q", m.View())
		}
	})
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		out  *tasks.UpdateResult
		want []string
	}{
		{
			name: "Nil",
			out:  nil,
			want: []string{"No result available"},
		},
		{
			name: "Complete",
			out: &tasks.UpdateResult{
				Job:    models.NewSyncJob("deals", []string{"rec1"}, records.Patch{"Stage": "Won"}),
				Result: &batch.BulkResult{Succeeded: 1, SucceededIDs: []string{"rec1"}},
			},
			want: []string{"Bulk update complete", "Table: deals", "1 succeeded, 0 failed, 0 not attempted"},
		},
		{
			name: "Partial",
			out:  partialResult(),
			want: []string{"partially applied", "Failed:", "rec2", "Not attempted:", "rec3", "opsync jobs retry job-1"},
		},
		{
			name: "Failed",
			out: &tasks.UpdateResult{
				Result: &batch.BulkResult{Failed: []string{"rec1"}, FirstFatal: errors.New("403 forbidden")},
			},
			want: []string{"Bulk update failed", "403 forbidden"},
		},
		{
			name: "Verification Mismatch",
			out: &tasks.UpdateResult{
				Result: &batch.BulkResult{Succeeded: 2, SucceededIDs: []string{"rec1", "rec2"}},
				Verification: &tasks.Verification{
					Checked:    2,
					Confirmed:  []string{"rec1"},
					Mismatches: []tasks.Mismatch{{ID: "rec2", Field: "Paid", Want: true, Got: false}},
				},
			},
			want: []string{"Verified 1 of 2 records", "rec2: Paid = false, want true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summary(tt.out)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Summary() missing %q in:\n%s", w, got)
				}
			}
		})
	}
}

func TestBulletList(t *testing.T) {
	ids := make([]string, 13)
	for i := range ids {
		ids[i] = "rec"
	}
	got := bulletList(ids)
	if strings.Count(got, "•") != maxListed || !strings.Contains(got, "and 3 more") {
		t.Errorf("unexpected list:\n%s", got)
	}
}
