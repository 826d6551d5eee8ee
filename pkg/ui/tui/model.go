// Package tui is the live job-queue dashboard behind `igharvest jobs watch`.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

// Source is the read side of the job store the dashboard polls
type Source interface {
	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]models.Job, error)
}

// DefaultRefresh is the polling interval when none is given
const DefaultRefresh = 2 * time.Second

const maxRows = 200

// Model is the dashboard state
type Model struct {
	ctx      context.Context
	source   Source
	interval time.Duration

	spinner spinner.Model
	table   table.Model

	counts    map[models.JobStatus]int
	jobs      []models.Job
	filter    int // index into filters
	refreshed time.Time
	err       error

	width    int
	height   int
	showHelp bool
}

// filters cycle with the f key; "" shows every job
var filters = append([]models.JobStatus{""}, models.AllStatuses...)

// NewModel creates a dashboard over source
func NewModel(ctx context.Context, source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultRefresh
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	t := table.New(
		table.WithColumns(columns(100)),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.Foreground(neonCyan).Bold(true)
	st.Selected = st.Selected.Foreground(darkBg).Background(neonMagenta)
	t.SetStyles(st)

	return Model{
		ctx:      ctx,
		source:   source,
		interval: interval,
		spinner:  s,
		table:    t,
		counts:   map[models.JobStatus]int{},
	}
}

// columns sizes the job table to the terminal width
func columns(width int) []table.Column {
	fixed := 6 + 8 + 10 + 26 + 4 + 20
	key := 24
	rest := width - fixed - 14
	if rest > key {
		key = rest / 2
	}
	errW := width - fixed - key - 14
	if errW < 16 {
		errW = 16
	}
	return []table.Column{
		{Title: "ID", Width: 6},
		{Title: "TYPE", Width: 8},
		{Title: "KEY", Width: key},
		{Title: "SOURCE", Width: 10},
		{Title: "STATUS", Width: 26},
		{Title: "TRY", Width: 4},
		{Title: "UPDATED", Width: 20},
		{Title: "LAST ERROR", Width: errW},
	}
}

// Filter returns the status the table is narrowed to; empty means all
func (m Model) Filter() models.JobStatus {
	return filters[m.filter]
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.jobs))
	for _, j := range m.jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = *j.LastError
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", j.ID),
			string(j.Type),
			j.EntityKey,
			string(j.Source),
			string(j.Status),
			fmt.Sprintf("%d", j.Attempts),
			j.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			lastErr,
		})
	}
	return rows
}

// bucketOf places a status into one of the count panels
func bucketOf(s models.JobStatus) bucket {
	switch {
	case s == models.StatusPending:
		return bucketQueued
	case s.IsRunning() || s.IsCompletedPhase():
		return bucketRunning
	case s == models.StatusRateLimited:
		return bucketWaiting
	case s == models.StatusScrapeDone:
		return bucketDone
	default:
		return bucketFailed
	}
}

// totals sums the counts per panel
func (m Model) totals() map[bucket]int {
	out := make(map[bucket]int, len(buckets))
	for s, n := range m.counts {
		out[bucketOf(s)] += n
	}
	return out
}
