package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/opsync/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.SyncJob] to implement [list.Item].
type jobItem struct {
	job *models.SyncJob
}

func (i jobItem) FilterValue() string { return i.job.Table() + " " + string(i.job.Status()) }
func (i jobItem) Title() string {
	return fmt.Sprintf("#%d %s · %s", i.job.Sequence(), i.job.Table(), i.job.Status())
}
func (i jobItem) Description() string {
	desc := fmt.Sprintf("%d/%d written · %s", i.job.Succeeded(), i.job.Total(), i.job.CreatedAt().Format(time.DateTime))
	if n := len(i.job.PendingIDs()); n > 0 {
		desc = fmt.Sprintf("%s · %d pending", desc, n)
	}
	return desc
}
