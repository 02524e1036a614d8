package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	JobDetailView
	ConfirmView
	ProgressView
	ResultView
)

const (
	jobListLimit = 50
	logLines     = 5
	maxBarWidth  = 60
)

// Engine is what the TUI needs from the sync engine.
type Engine interface {
	Update(ctx context.Context, req tasks.UpdateRequest, progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error)
	Retry(ctx context.Context, jobID string, verify bool, progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error)
	Jobs(criteria map[string]any) ([]*models.SyncJob, error)
}

type runFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	engine       Engine
	width        int
	height       int
	jobList      list.Model
	listReady    bool
	jobs         []*models.SyncJob
	selected     *models.SyncJob
	pending      runFunc
	progressChan chan tasks.ProgressUpdate
	done         chan runComplete
	progress     tasks.ProgressUpdate
	chunks       int
	chunksDone   int
	log          []string
	bar          progress.Model
	spinner      spinner.Model
	result       *tasks.UpdateResult
	err          error
	verify       bool
	standalone   bool // started for a single run; quits from the result view
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model browsing the job history of engine.
//
// Retries started from the TUI read records back when verify is set.
func NewModel(ctx context.Context, engine Engine, verify bool) *Model {
	return &Model{
		ctx:     ctx,
		view:    JobListView,
		engine:  engine,
		verify:  verify,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.title.UnsetMarginBottom())),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// NewUpdateModel creates a TUI model that runs req and shows its progress.
func NewUpdateModel(ctx context.Context, engine Engine, req tasks.UpdateRequest) *Model {
	m := NewModel(ctx, engine, req.Verify)
	m.view = ProgressView
	m.standalone = true
	m.pending = func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error) {
		return engine.Update(ctx, req, progress)
	}
	return m
}

// Result returns the outcome of the last run and its error.
func (m *Model) Result() (*tasks.UpdateResult, error) {
	return m.result, m.err
}

// Init starts the pending run, or fetches the job list.
func (m *Model) Init() tea.Cmd {
	if m.pending != nil {
		return tea.Batch(m.spinner.Tick, m.start(m.pending))
	}
	return m.fetchJobs()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(maxBarWidth, max(msg.Width-4, 10))
		if m.listReady {
			m.jobList.SetSize(max(msg.Width-4, 0), max(msg.Height-6, 0))
		}
		return m, nil

	case spinner.TickMsg:
		if m.view != ProgressView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleJobListKeys(msg)
		case JobDetailView:
			return m.handleDetailKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ProgressView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsFetched:
		data := msg.data.(jobsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.jobs = data.jobs
		items := make([]list.Item, len(data.jobs))
		for i, j := range data.jobs {
			items[i] = jobItem{job: j}
		}
		m.jobList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.jobList.Title = "Sync Jobs"
		m.jobList.SetSize(max(m.width-4, 0), max(m.height-6, 0))
		m.listReady = true
		return m, nil

	case MsgProgressUpdate:
		m.applyProgress(msg.data.(tasks.ProgressUpdate))
		return m, m.waitForProgress()

	case MsgRunComplete:
		data := msg.data.(runComplete)
		m.result = data.result
		m.err = data.err
		m.view = ResultView
		m.progressChan = nil
		m.done = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) applyProgress(u tasks.ProgressUpdate) {
	m.progress = u
	if u.Phase == tasks.Dispatching {
		m.chunks = u.Total
		m.chunksDone = u.Step
	}
	if u.Step > 0 && u.Phase != tasks.Finished {
		m.log = append(m.log, u.Message)
		if len(m.log) > logLines {
			m.log = m.log[len(m.log)-logLines:]
		}
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case JobListView:
		return m.renderJobList()
	case JobDetailView:
		return m.renderDetail()
	case ConfirmView:
		return m.renderConfirm()
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleJobListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.listReady && m.jobList.FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchJobs()
	case key.Matches(msg, m.keys.enter) && m.listReady:
		if item, ok := m.jobList.SelectedItem().(jobItem); ok {
			m.selected = item.job
			m.view = JobDetailView
		}
		return m, nil
	}

	return m.updateList(msg)
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = JobListView
		return m, nil
	case key.Matches(msg, m.keys.retry):
		if m.selected != nil && len(m.selected.PendingIDs()) > 0 {
			m.view = ConfirmView
		}
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = JobDetailView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		jobID := m.selected.ID()
		m.view = ProgressView
		return m, tea.Batch(m.spinner.Tick, m.start(func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.UpdateResult, error) {
			return m.engine.Retry(ctx, jobID, m.verify, progress)
		}))
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back) && !m.standalone:
		m.view = JobListView
		m.selected = nil
		m.result = nil
		m.err = nil
		m.log = nil
		return m, m.fetchJobs()
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != JobListView || !m.listReady {
		return m, nil
	}
	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) fetchJobs() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.engine.Jobs(map[string]any{"limit": jobListLimit})
		return jobsFetchedMsg(jobs, err)
	}
}

// start runs fn in the background; its updates arrive through waitForProgress.
func (m *Model) start(fn runFunc) tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.done = make(chan runComplete, 1)
	m.progress = tasks.ProgressUpdate{}
	m.chunks, m.chunksDone = 0, 0
	m.log = nil

	progressChan, done := m.progressChan, m.done
	go func() {
		result, err := fn(m.ctx, progressChan)
		done <- runComplete{result: result, err: err}
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.done
	return func() tea.Msg {
		if progressChan == nil {
			return runCompleteMsg(m.result, m.err)
		}

		update, ok := <-progressChan
		if !ok {
			r := <-done
			return runCompleteMsg(r.result, r.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) percent() float64 {
	if m.chunks == 0 {
		return 0
	}
	return float64(m.chunksDone) / float64(m.chunks)
}

func (m *Model) renderJobList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.quit}
	if !m.listReady {
		return fmt.Sprintf("%s Loading jobs...\n\n%s", m.spinner.View(), m.help.ShortHelpView(helpKeys))
	}
	if len(m.jobs) == 0 {
		return fmt.Sprintf("%s\n%s\n\n%s", styles.title.Render("Sync Jobs"), "No bulk updates yet.", m.help.ShortHelpView(helpKeys))
	}
	return fmt.Sprintf("%s\n\n%s", m.jobList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDetail() string {
	j := m.selected
	title := styles.title.Render(fmt.Sprintf("Job #%d · %s", j.Sequence(), j.Table()))

	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\nStatus: %s\nWritten: %d/%d\n", j.ID(), j.Status(), j.Succeeded(), j.Total())
	if j.ParentID() != "" {
		fmt.Fprintf(&b, "Retry of: %s\n", j.ParentID())
	}
	if j.ErrorMessage() != "" {
		b.WriteString(styles.warn.Render("Error: "+j.ErrorMessage()) + "\n")
	}
	if ids := j.FailedIDs(); len(ids) > 0 {
		b.WriteString("\nFailed:\n" + bulletList(ids))
	}
	if ids := j.NotAttemptedIDs(); len(ids) > 0 {
		b.WriteString("\nNot attempted:\n" + bulletList(ids))
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	if len(j.PendingIDs()) > 0 {
		helpKeys = append([]key.Binding{m.keys.retry}, helpKeys...)
	}
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	n := len(m.selected.PendingIDs())
	title := styles.title.Render(fmt.Sprintf("Retry %d records of job #%d?", n, m.selected.Sequence()))
	info := fmt.Sprintf("\nTable: %s\nPatch fields: %s\n", m.selected.Table(), strings.Join(m.selected.Patch().Keys(), ", "))

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderProgress() string {
	title := styles.title.Render("Writing Records")

	phase := "Starting..."
	switch m.progress.Phase {
	case tasks.Validating:
		phase = "Validating patch..."
	case tasks.Dispatching:
		phase = fmt.Sprintf("Writing chunks (%d/%d)", m.chunksDone, m.chunks)
	case tasks.Verifying:
		phase = fmt.Sprintf("Reading back (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.Finished:
		phase = "Finishing..."
	}

	lines := make([]string, len(m.log))
	for i, l := range m.log {
		lines[i] = styles.help.Render(l)
	}

	return fmt.Sprintf("%s\n%s %s\n\n%s\n\n%s", title, m.spinner.View(), phase, m.bar.ViewAs(m.percent()), strings.Join(lines, "\n"))
}

func (m *Model) renderResult() string {
	var body string
	if m.err != nil && m.result == nil {
		body = styles.err.Render(fmt.Sprintf("Update failed: %v", m.err))
	} else {
		body = Summary(m.result)
		if m.err != nil {
			body += "\n" + styles.warn.Render(fmt.Sprintf("Warning: %v", m.err))
		}
	}

	helpKeys := []key.Binding{m.keys.quit}
	if !m.standalone {
		helpKeys = append([]key.Binding{m.keys.back}, helpKeys...)
	}
	return fmt.Sprintf("%s\n\n%s", body, m.help.ShortHelpView(helpKeys))
}
