package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/opsync/internal/models"
	"github.com/desertthunder/opsync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobsFetched MsgKind = iota
	MsgProgressUpdate
	MsgRunComplete
)

type jobsFetched struct {
	jobs []*models.SyncJob
	err  error
}

type runComplete struct {
	result *tasks.UpdateResult
	err    error
}

// jobsFetchedMsg is the constructor for [MsgJobsFetched]
func jobsFetchedMsg(jobs []*models.SyncJob, err error) Msg {
	return Msg{kind: MsgJobsFetched, data: jobsFetched{jobs, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(result *tasks.UpdateResult, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runComplete{result, err}}
}
