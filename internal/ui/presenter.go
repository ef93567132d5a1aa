package ui

import (
	"io"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

// Event is the engine's progress event.
type Event = event.Event

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     stats.ReadTicker
	Workers   int
	Width     int
	IsTTY     bool
	Quiet     bool
	// Verbose lists every file in plain mode, not just problems.
	Verbose    bool
	ForceFeed  bool
	ForceRate  bool
	NoProgress bool
}

// NewPresenter picks the presenter for cfg: quiet, plain line output when
// not on a terminal, or the inline HUD.
//
//nolint:ireturn // returns one of several presenters
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return quietPresenter{}
	}
	if !cfg.IsTTY || cfg.NoProgress {
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			stats:   cfg.Stats,
			verbose: cfg.Verbose,
		}
	}
	return &hudPresenter{
		w:         cfg.ErrWriter, // HUD renders to stderr (the TTY)
		stats:     cfg.Stats,
		forceFeed: cfg.ForceFeed,
		forceRate: cfg.ForceRate,
		workers:   cfg.Workers,
		width:     cfg.Width,
	}
}
