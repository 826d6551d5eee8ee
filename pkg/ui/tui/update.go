package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

// SnapshotMsg carries one poll of the job store
type SnapshotMsg struct {
	Counts map[models.JobStatus]int
	Jobs   []models.Job
	At     time.Time
	Err    error
}

// TickMsg asks for the next poll
type TickMsg time.Time

// Init starts the spinner and the first poll
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

// Update handles all messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(columns(msg.Width))
		if h := msg.Height - 14; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, m.refresh()

	case SnapshotMsg:
		m.refreshed = msg.At
		m.err = msg.Err
		if msg.Err == nil {
			m.counts = msg.Counts
			m.jobs = msg.Jobs
			m.table.SetRows(m.rows())
		}
		return m, tickCmd(m.interval)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c", "esc":
		return m, tea.Quit

	case "r":
		return m, m.refresh()

	case "f":
		m.filter = (m.filter + 1) % len(filters)
		return m, m.refresh()

	case "F":
		m.filter = (m.filter + len(filters) - 1) % len(filters)
		return m, m.refresh()

	case "?":
		m.showHelp = !m.showHelp
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh polls the source off the UI goroutine
func (m Model) refresh() tea.Cmd {
	ctx, src, status := m.ctx, m.source, m.Filter()
	return func() tea.Msg {
		counts, err := src.CountJobsByStatus(ctx)
		if err != nil {
			return SnapshotMsg{At: time.Now(), Err: err}
		}
		jobs, err := src.ListJobs(ctx, store.JobFilter{Status: status, Limit: maxRows})
		if err != nil {
			return SnapshotMsg{At: time.Now(), Err: err}
		}
		return SnapshotMsg{Counts: counts, Jobs: jobs, At: time.Now()}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
