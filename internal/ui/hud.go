package ui

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// hudPresenter prints a scrolling feed of finished files above a HUD that
// redraws in place. When files finish faster than the feed can be read it
// switches to a rate view.
type hudPresenter struct {
	w         io.Writer
	stats     stats.ReadTicker
	forceFeed bool
	forceRate bool
	workers   int
	width     int // terminal columns; 0 disables truncation

	hudDrawn     bool
	hudLineCount int
	rateMode     bool
	rateSwitched bool
	busyWorkers  map[int]bool
	lastHUDDraw  time.Time
}

const (
	rateThreshHigh   = 200.0
	rateThreshLow    = 100.0
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond
)

func (p *hudPresenter) Run(events <-chan Event) error {
	if p.busyWorkers == nil {
		p.busyWorkers = make(map[int]bool)
	}
	if p.forceRate {
		p.rateMode = true
	}

	// The first tick comes early to seed the rate ring.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	seeded := false

	// Keeps the HUD moving while one large file is copied.
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.maybeSwitch()
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !seeded {
				seeded = true
				secTicker.Reset(time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	if ev.Type.Settles() {
		delete(p.busyWorkers, ev.WorkerID)
	}
	switch ev.Type {
	case event.FileStarted:
		p.busyWorkers[ev.WorkerID] = true

	case event.FileCompleted:
		p.feedLine("✓  %s  %10s  %s", p.styledPath(ev.Path), FormatBytes(ev.Size), methodLabel(ev.Method))

	case event.FileFailed:
		// Failures are shown even in rate mode.
		p.clearHUD()
		fmt.Fprintf(p.w, "✗  %s  %s: %s\n", p.styledPath(ev.Path), ev.Reason, errText(ev.Error))
		p.drawHUD()

	case event.FileSkipped:
		p.feedLine("–  %s  %sskipped (%s)%s", p.styledPath(ev.Path), ansiDim, ev.Reason, ansiReset)

	case event.VerifyStarted:
		p.clearHUD()
		fmt.Fprintf(p.w, "%sverifying checksums...%s\n", ansiDim, ansiReset)

	case event.VerifyFailed:
		p.clearHUD()
		fmt.Fprintf(p.w, "✗  %s  CHECKSUM MISMATCH\n", p.styledPath(ev.Path))
		p.drawHUD()
	}
}

// feedLine prints one line above the HUD unless the rate view is active.
func (p *hudPresenter) feedLine(format string, args ...any) {
	if p.rateMode {
		return
	}
	p.clearHUD()
	fmt.Fprintf(p.w, format+"\n", args...)
	p.drawHUD()
}

func (p *hudPresenter) maybeSwitch() {
	if p.forceFeed || p.forceRate {
		return
	}

	fps := p.stats.RollingFilesPerSec(2)
	switch {
	case !p.rateMode && fps > rateThreshHigh:
		p.rateMode = true
		if !p.rateSwitched {
			p.rateSwitched = true
			p.clearHUD()
			fmt.Fprintf(p.w, "↯ rate view (%s files/s · use --feed to see individual files)\n",
				FormatCount(int64(fps)))
		}
	case p.rateMode && fps < rateThreshLow:
		p.rateMode = false
	}
}

func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesDone) / float64(snap.BytesTotal)
	}
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	lines := 0

	if p.rateMode {
		fmt.Fprintf(p.w, "files/s  %s  %s/s   %s / %s done\n",
			spark, FormatCount(int64(p.stats.RollingFilesPerSec(5))),
			FormatCount(snap.FilesDone), FormatCount(snap.FilesTotal))
		lines++
	}

	fmt.Fprintf(p.w, "       %s   %s   %s / %s   %s\n",
		spark, FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.BytesDone), FormatBytes(snap.BytesTotal),
		WorkerIndicator(len(p.busyWorkers), p.workers))
	lines++

	fmt.Fprintf(p.w, " %3.0f%%  %s   %s / %s files   eta %s\n",
		pct*100, ProgressBar(pct, progressBarWidth),
		FormatCount(snap.FilesDone), FormatCount(snap.FilesTotal),
		FormatETA(p.stats.ETA()))
	lines++

	p.hudDrawn = true
	p.hudLineCount = lines
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Cursor up over the HUD, then clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", p.hudLineCount)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath dims the directory part of a relative path so the file name
// stands out.
func (p *hudPresenter) styledPath(rel string) string {
	if p.width > 0 {
		// Leave room for the icon, size and method columns.
		rel = truncPath(rel, max(p.width-30, 20))
	}
	dir, base := path.Split(rel)
	if dir == "" {
		return base
	}
	return ansiDim + dir + ansiReset + base
}

// truncPath shortens a path to fit within maxLen characters.
func truncPath(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return "..." + s[len(s)-maxLen+3:]
}
