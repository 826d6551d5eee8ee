package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the dashboard until the user quits or ctx ends
func Run(ctx context.Context, source Source, interval time.Duration) error {
	p := tea.NewProgram(NewModel(ctx, source, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
