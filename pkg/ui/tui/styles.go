package tui

import "github.com/charmbracelet/lipgloss"

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	alertRed    = lipgloss.Color("#FF0000")
	darkBg      = lipgloss.Color("#0A0E27")
	dimWhite    = lipgloss.Color("#B0B0B0")

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingTop(1)
)

// bucket groups statuses into the dashboard panels
type bucket struct {
	title string
	color lipgloss.Color
}

var (
	bucketQueued  = bucket{"QUEUED", neonCyan}
	bucketRunning = bucket{"RUNNING", neonYellow}
	bucketDone    = bucket{"DONE", neonGreen}
	bucketWaiting = bucket{"WAITING", neonOrange}
	bucketFailed  = bucket{"FAILED", alertRed}
)

var buckets = []bucket{bucketQueued, bucketRunning, bucketWaiting, bucketDone, bucketFailed}
