package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

const plainProgressInterval = 5 * time.Second

// plainPresenter writes one line per failed or skipped entry (and per
// copied file when verbose) to w, and periodic progress lines to errW.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   stats.ReadTicker
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	lastProgress := time.Now()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case now := <-ticker.C:
			p.stats.Tick()
			if now.Sub(lastProgress) >= plainProgressInterval {
				lastProgress = now
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case event.FileCompleted:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Path, FormatBytes(ev.Size), methodLabel(ev.Method))
		}
	case event.FileFailed:
		fmt.Fprintf(p.w, "%s  failed (%s): %s\n", ev.Path, ev.Reason, errText(ev.Error))
	case event.FileSkipped:
		fmt.Fprintf(p.w, "%s  skipped (%s)\n", ev.Path, ev.Reason)
	case event.DirCreated:
		if p.verbose {
			fmt.Fprintf(p.w, "%s/\n", ev.Path)
		}
	case event.VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case event.VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", ev.Path)
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesDone) / float64(snap.BytesTotal) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s files %s eta %s\n",
			pct,
			FormatBytes(snap.BytesDone), FormatBytes(snap.BytesTotal),
			FormatCount(snap.FilesDone), FormatCount(snap.FilesTotal),
			FormatRate(p.stats.RollingSpeed(10)),
			FormatETA(p.stats.ETA()),
		)
		return
	}
	fmt.Fprintf(p.errW, "progress: scanning, %s files found\n", FormatCount(snap.FilesScanned))
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}

// methodLabel shortens a copy method name for display.
func methodLabel(m string) string {
	switch m {
	case "":
		return "-"
	case "copy_file_range":
		return "cfr"
	case "sparse_read_write":
		return "sparse"
	case "read_write":
		return "rw"
	default:
		return m
	}
}
