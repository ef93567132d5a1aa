package tui

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/ui"
)

// maxHistory bounds the finished-file list kept for scrolling.
const maxHistory = 10000

type inFlightEntry struct {
	path     string
	size     int64
	workerID int
}

type finishedEntry struct {
	path   string
	method string
	reason string
	errMsg string
	size   int64
	result event.Type // FileCompleted, FileSkipped or FileFailed
}

type errorEntry struct {
	path   string
	reason string
	err    string
}

type feedView struct {
	inFlight     map[int]inFlightEntry // keyed by worker
	finished     []finishedEntry
	errors       []errorEntry // never evicted
	dropped      int          // finished entries evicted from history
	scrollOffset int
	autoScroll   bool
}

func newFeedView() feedView {
	return feedView{inFlight: make(map[int]inFlightEntry), autoScroll: true}
}

func (f *feedView) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.FileStarted:
		f.inFlight[ev.WorkerID] = inFlightEntry{path: ev.Path, size: ev.Size, workerID: ev.WorkerID}

	case event.FileCompleted:
		delete(f.inFlight, ev.WorkerID)
		f.add(finishedEntry{path: ev.Path, size: ev.Size, method: ev.Method, result: ev.Type})

	case event.FileSkipped:
		if cur, ok := f.inFlight[ev.WorkerID]; ok && cur.path == ev.Path {
			delete(f.inFlight, ev.WorkerID)
		}
		f.add(finishedEntry{path: ev.Path, reason: ev.Reason, result: ev.Type})

	case event.FileFailed:
		if cur, ok := f.inFlight[ev.WorkerID]; ok && cur.path == ev.Path {
			delete(f.inFlight, ev.WorkerID)
		}
		msg := errText(ev.Error)
		f.add(finishedEntry{path: ev.Path, reason: ev.Reason, errMsg: msg, result: ev.Type})
		f.errors = append(f.errors, errorEntry{path: ev.Path, reason: ev.Reason, err: msg})

	case event.VerifyFailed:
		f.errors = append(f.errors, errorEntry{path: ev.Path, reason: "verify_mismatch", err: errText(ev.Error)})
	}
}

func (f *feedView) add(e finishedEntry) {
	f.finished = append(f.finished, e)
	if over := len(f.finished) - maxHistory; over > 0 {
		f.finished = slices.Delete(f.finished, 0, over)
		f.dropped += over
		f.scrollOffset = max(f.scrollOffset-over, 0)
	}
}

func (f *feedView) scrollDown() {
	f.autoScroll = false
	f.scrollOffset++
}

func (f *feedView) scrollUp() {
	f.autoScroll = false
	f.scrollOffset = max(f.scrollOffset-1, 0)
}

func (f *feedView) scrollToTop() {
	f.autoScroll = false
	f.scrollOffset = 0
}

// scrollToBottom follows new entries again.
func (f *feedView) scrollToBottom() {
	f.autoScroll = true
}

// view lays out in-flight files (at most a third of the height), the
// scrollable finished list, and the latest errors pinned at the bottom.
func (f *feedView) view(width, height int) string {
	width = max(width, 20)

	inFlightRows := min(len(f.inFlight), max(height/3, 1))
	errRows := min(len(f.errors), 5)
	dividers := 0
	for _, n := range []int{inFlightRows, errRows, len(f.finished)} {
		if n > 0 {
			dividers++
		}
	}
	finishedRows := max(height-inFlightRows-errRows-dividers, 1)

	maxOffset := max(len(f.finished)-finishedRows, 0)
	if f.autoScroll {
		f.scrollOffset = maxOffset
	}
	f.scrollOffset = min(max(f.scrollOffset, 0), maxOffset)

	var b strings.Builder
	if inFlightRows > 0 {
		b.WriteString(styleDivider.Render("─ in-flight") + "\n")
		workers := make([]int, 0, len(f.inFlight))
		for id := range f.inFlight {
			workers = append(workers, id)
		}
		slices.Sort(workers)
		for _, id := range workers[:inFlightRows] {
			e := f.inFlight[id]
			fmt.Fprintf(&b, "  %s  %s  %s\n",
				styleInFlight.Render("⟩"), styledPath(e.path, width), styleFileSize.Render(ui.FormatBytes(e.size)))
		}
	}

	if len(f.finished) > 0 {
		label := fmt.Sprintf("─ finished (%s)", ui.FormatCount(int64(len(f.finished)+f.dropped)))
		b.WriteString(styleDivider.Render(label) + "\n")
		end := min(f.scrollOffset+finishedRows, len(f.finished))
		for _, e := range f.finished[f.scrollOffset:end] {
			b.WriteString(renderFinished(e, width))
			b.WriteByte('\n')
		}
	}

	if errRows > 0 {
		label := fmt.Sprintf("─ errors (%d)", len(f.errors))
		b.WriteString(styleDivider.Render(label) + "\n")
		for _, e := range f.errors[len(f.errors)-errRows:] {
			b.WriteString(renderError(e, width))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// errorsView lists every error, newest last, trimmed to height.
func (f *feedView) errorsView(width, height int) string {
	if len(f.errors) == 0 {
		return styleIconDone.Render("  no errors") + "\n"
	}
	var b strings.Builder
	start := max(len(f.errors)-height, 0)
	for _, e := range f.errors[start:] {
		b.WriteString(renderError(e, width))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderFinished(e finishedEntry, width int) string {
	p := styledPath(e.path, width)
	switch e.result {
	case event.FileFailed:
		return fmt.Sprintf("  %s  %s  %s", styleIconFailed.Render("✗"), p, styleError.Render(e.reason))
	case event.FileSkipped:
		return fmt.Sprintf("  %s  %s  %s", styleIconSkipped.Render("–"), p, styleIconSkipped.Render("skipped ("+e.reason+")"))
	default:
		size := styleFileSize.Render(fmt.Sprintf("%10s", ui.FormatBytes(e.size)))
		line := fmt.Sprintf("  %s  %s  %s", styleIconDone.Render("✓"), p, size)
		if e.method != "" {
			line += "  " + styleMethod.Render(e.method)
		}
		return line
	}
}

func renderError(e errorEntry, width int) string {
	return fmt.Sprintf("  %s  %s  %s",
		styleIconFailed.Render("✗"),
		styleErrorPath.Render(truncate(e.path, width/2)),
		styleError.Render(e.reason+": "+e.err))
}

// styledPath dims the directory part of rel, truncating from the left so
// the file name stays visible.
func styledPath(rel string, width int) string {
	rel = truncate(rel, max(width-30, 20))
	dir, base := path.Split(rel)
	if dir == "" {
		return styleFilePath.Render(base)
	}
	return styleFileDir.Render(dir) + styleFilePath.Render(base)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen || maxLen <= 3 {
		return s
	}
	return "..." + s[len(s)-maxLen+3:]
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}
