// Package ui renders CLI output: styled status lines for the one-shot
// commands and, in the tui subpackage, the live queue dashboard.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Banner is printed by long-running commands on start
const Banner = `
 ┬┌─┐┬ ┬┌─┐┬─┐┬  ┬┌─┐┌─┐┌┬┐
 ││ ┬├─┤├─┤├┬┘└┐┌┘├┤ └─┐ │
 ┴└─┘┴ ┴┴ ┴┴└─ └┘ └─┘└─┘ ┴ `

var (
	cyan    = lipgloss.Color("#00FFFF")
	yellow  = lipgloss.Color("#FFFF00")
	red     = lipgloss.Color("#FF3B3B")
	green   = lipgloss.Color("#39FF14")
	magenta = lipgloss.Color("#FF00FF")
	dim     = lipgloss.Color("#8A8A8A")

	errorStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	successStyle   = lipgloss.NewStyle().Foreground(green)
	labelStyle     = lipgloss.NewStyle().Foreground(cyan)
	valueStyle     = lipgloss.NewStyle().Foreground(yellow)
	warningStyle   = lipgloss.NewStyle().Foreground(yellow)
	highlightStyle = lipgloss.NewStyle().Foreground(magenta).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(dim)
)

var (
	mu    sync.Mutex
	out   io.Writer = os.Stdout
	quiet bool
)

// SetOutput redirects every Print function; nil restores stdout
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

func write(always bool, s string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !always {
		return
	}
	fmt.Fprintln(out, s)
}

// Dim renders secondary text
func Dim(s string) string {
	return dimStyle.Render(s)
}

// PrintBanner prints the banner with a version line
func PrintBanner(version string) {
	write(false, labelStyle.Render(Banner)+"  "+Dim(version))
}

// PrintError prints an error message; the first arg is appended as detail
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg += ": " + fmt.Sprint(args[0])
	}
	write(true, errorStyle.Render(msg))
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	write(false, successStyle.Render(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label, value string) {
	write(false, labelStyle.Render(label+":")+" "+valueStyle.Render(value))
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg += ": " + fmt.Sprint(args[0])
	}
	write(false, warningStyle.Render(msg))
}

// PrintHighlight prints a section heading
func PrintHighlight(msg string) {
	write(false, highlightStyle.Render(msg))
}

// PrintTable prints rows under a header with padded columns
func PrintTable(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			if w := lipgloss.Width(r[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Width(widths[i]).Render(cell)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	write(false, line(header, labelStyle.Bold(true)))
	for _, r := range rows {
		write(false, line(r, lipgloss.NewStyle()))
	}
}
