package tui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
	"github.com/bamsammich/xcp/internal/ui"
)

type rateView struct {
	busy map[int]bool
}

func newRateView() rateView {
	return rateView{busy: make(map[int]bool)}
}

func (r *rateView) handleEvent(ev event.Event) {
	switch {
	case ev.Type == event.FileStarted:
		r.busy[ev.WorkerID] = true
	case ev.Type.Settles():
		delete(r.busy, ev.WorkerID)
	}
}

func (r *rateView) view(width int, snap stats.Snapshot, src stats.ReadTicker, workers int) string {
	width = max(width, 20)
	speed := src.RollingSpeed(5)

	var b strings.Builder
	b.WriteString("  " + styleBigNumber.Render(ui.FormatRate(speed)) + "\n\n")

	sparkWidth := max(width-4, 10)
	b.WriteString("  " + styleSparkline.Render(ui.Sparkline(src.SparklineData(sparkWidth), sparkWidth)) + "\n\n")

	fmt.Fprintf(&b, "  %s   %s\n\n",
		styleMethod.Render(fmt.Sprintf("%s files/s", ui.FormatCount(int64(src.RollingFilesPerSec(5))))),
		styleFileSize.Render(fmt.Sprintf("%s / %s files", ui.FormatCount(snap.FilesDone), ui.FormatCount(snap.FilesTotal))))

	b.WriteString("  " + styleDivider.Render("workers") + "  ")
	for i := range workers {
		if r.busy[i] {
			b.WriteString(styleWorkerBusy.Render("▪"))
		} else {
			b.WriteString(styleWorkerIdle.Render("□"))
		}
	}
	b.WriteByte('\n')
	return b.String()
}
