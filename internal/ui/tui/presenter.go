// Package tui is the full-screen terminal presenter.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
	"github.com/bamsammich/xcp/internal/ui"
)

// Config configures the TUI presenter.
type Config struct {
	Stats   stats.ReadTicker
	Cancel  func()
	SrcRoot string
	DstRoot string
	Workers int
}

// Presenter wraps a Bubble Tea program and implements ui.Presenter.
type Presenter struct {
	cfg Config
}

// NewPresenter creates a new TUI presenter.
func NewPresenter(cfg Config) *Presenter {
	return &Presenter{cfg: cfg}
}

// Run starts the Bubble Tea program and blocks until the user quits.
// Events left unread after an early quit are drained so the sender never
// notices.
func (p *Presenter) Run(events <-chan event.Event) error {
	prog := tea.NewProgram(
		NewModel(events, p.cfg.Stats, p.cfg),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	_, err := prog.Run()
	for range events {
	}
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// Summary returns the final completion summary line.
func (p *Presenter) Summary() string {
	return ui.CompletionSummary(p.cfg.Stats.Snapshot())
}
