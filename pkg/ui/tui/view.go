package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard
func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderCounts())
	sections = append(sections, panelStyle.Render(m.table.View()))

	if m.err != nil {
		sections = append(sections, errorStyle.Render("refresh failed: "+m.err.Error()))
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q quit • f filter • r refresh • ? help"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	filter := "all"
	if f := m.Filter(); f != "" {
		filter = string(f)
	}

	updated := "waiting for first poll"
	if !m.refreshed.IsZero() {
		updated = "updated " + m.refreshed.Format("15:04:05")
	}

	return lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("IGHARVEST QUEUE"),
		" ",
		m.spinner.View(),
		" ",
		statsLabelStyle.Render("filter:"),
		" ",
		statsValueStyle.Render(filter),
		"  ",
		dimStyle.Render(updated),
	)
}

// renderCounts shows one box per bucket with the total and its statuses
func (m Model) renderCounts() string {
	totals := m.totals()

	boxes := make([]string, 0, len(buckets))
	for _, b := range buckets {
		var lines []string
		lines = append(lines, lipgloss.NewStyle().Foreground(b.color).Bold(true).
			Render(fmt.Sprintf("%s %d", b.title, totals[b])))
		for _, s := range filters[1:] {
			if n := m.counts[s]; n > 0 && bucketOf(s) == b {
				lines = append(lines, dimStyle.Render(fmt.Sprintf("%s %d", strings.ToLower(string(s)), n)))
			}
		}
		boxes = append(boxes, panelStyle.BorderForeground(b.color).Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m Model) renderHelp() string {
	help := []string{
		"↑/↓ k/j   move",
		"f / F     next / previous status filter",
		"r         refresh now",
		"q         quit",
	}
	return helpStyle.Render(strings.Join(help, "\n"))
}
