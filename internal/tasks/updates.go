package tasks

import (
	"fmt"

	"github.com/desertthunder/opsync/internal/batch"
	"github.com/desertthunder/opsync/internal/shared"
	"github.com/desertthunder/opsync/internal/views"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Validating Phase = iota
	Dispatching
	Verifying
	Counting
	Finished
)

func (p Phase) String() string {
	switch p {
	case Validating:
		return "validating"
	case Dispatching:
		return "dispatching"
	case Verifying:
		return "verifying"
	case Counting:
		return "counting"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

func validateUpdate(table string, n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Validating,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Validating patch for %d %s in %s...", n, shared.Pluralize(n, "record"), table),
	}
}

func dispatchStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Dispatching,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Writing %d %s...", total, shared.Pluralize(total, "chunk")),
	}
}

// chunkUpdate carries the [batch.ChunkResult] as Data.
func chunkUpdate(step, total int, res batch.ChunkResult) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] chunk %d: %s (%d %s)", step, total, res.Index+1, res.Status, len(res.IDs), shared.Pluralize(len(res.IDs), "record"))
	if res.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, res.Err)
	}
	return ProgressUpdate{
		Phase:   Dispatching,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func verifyUpdate(step, total int, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Verifying,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Reading back %s...", step, total, id),
	}
}

func countUpdate(tag views.ServiceTag, n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Counting,
		Step:    0,
		Total:   n,
		Message: fmt.Sprintf("Counting %d %s in %s...", n, shared.Pluralize(n, "view"), tag),
	}
}

// finishedUpdate carries the [batch.BulkResult] as Data.
func finishedUpdate(res *batch.BulkResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finished,
		Step:    1,
		Total:   1,
		Message: res.Summary(),
		Data:    res,
	}
}
