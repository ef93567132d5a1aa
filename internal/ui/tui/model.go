package tui

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
	"github.com/bamsammich/xcp/internal/ui"
)

type viewMode int

const (
	viewFeed viewMode = iota
	viewRate
	viewErrors
)

// Bubble Tea messages.
type (
	engineEventMsg event.Event
	channelDoneMsg struct{}
	tickMsg        time.Time
	saveResultMsg  struct {
		err  error
		path string
	}
)

// readNextEvent blocks on the event channel.
func readNextEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return channelDoneMsg{}
		}
		return engineEventMsg(ev)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the root Bubble Tea model.
type Model struct {
	events  <-chan event.Event
	stats   stats.ReadTicker
	cancel  func()
	srcRoot string
	dstRoot string
	workers int

	mode       viewMode
	feed       feedView
	rate       rateView
	width      int
	height     int
	statusMsg  string
	done       bool
	cancelling bool
	quitting   bool

	lastSnap  stats.Snapshot
	lastSpeed float64
	lastETA   time.Duration
}

// NewModel creates a model reading events until the channel closes.
// cancel stops the run when the user quits early.
func NewModel(events <-chan event.Event, collector stats.ReadTicker, cfg Config) Model {
	return Model{
		events:  events,
		stats:   collector,
		cancel:  cfg.Cancel,
		srcRoot: cfg.SrcRoot,
		dstRoot: cfg.DstRoot,
		workers: cfg.Workers,
		feed:    newFeedView(),
		rate:    newRateView(),
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(readNextEvent(m.events), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case engineEventMsg:
		ev := event.Event(msg)
		m.feed.handleEvent(ev)
		m.rate.handleEvent(ev)
		return m, readNextEvent(m.events)

	case channelDoneMsg:
		m.done = true
		m.lastSnap = m.stats.Snapshot()
		m.lastETA = 0
		if m.cancelling {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.stats.Tick()
		m.lastSnap = m.stats.Snapshot()
		m.lastSpeed = m.stats.RollingSpeed(10)
		m.lastETA = m.stats.ETA()
		return m, tickCmd()

	case saveResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.statusMsg = "saved to " + msg.path
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.done || m.cancelling {
			m.quitting = true
			return m, tea.Quit
		}
		// Stop the run; the program exits once the engine has wound down.
		m.cancelling = true
		m.statusMsg = "cancelling..."
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil

	case "f":
		m.mode = viewFeed
	case "r":
		m.mode = viewRate
	case "e":
		m.mode = viewErrors

	case "j", "down":
		m.feed.scrollDown()
	case "k", "up":
		m.feed.scrollUp()
	case "g":
		m.feed.scrollToTop()
	case "G":
		m.feed.scrollToBottom()

	case "s":
		if m.done {
			return m, m.writeReport(fmt.Sprintf("xcp-%s.log", time.Now().Format("2006-01-02-150405")))
		}
	}
	return m, nil
}

// writeReport saves the run totals and the error table to path.
func (m Model) writeReport(path string) tea.Cmd {
	snap := m.lastSnap
	srcRoot, dstRoot := m.srcRoot, m.dstRoot
	rows := make([]ui.FailureRow, 0, len(m.feed.errors))
	for _, e := range m.feed.errors {
		rows = append(rows, ui.FailureRow{Path: e.path, Kind: e.reason, Error: e.err})
	}

	return func() tea.Msg {
		var b bytes.Buffer
		fmt.Fprintf(&b, "source:      %s\n", srcRoot)
		fmt.Fprintf(&b, "destination: %s\n", dstRoot)
		fmt.Fprintf(&b, "finished:    %s\n", time.Now().Format(time.DateTime))
		fmt.Fprintln(&b, ui.CompletionSummary(snap))
		if len(rows) > 0 {
			b.WriteByte('\n')
			if err := ui.RenderFailures(&b, rows, 0); err != nil {
				return saveResultMsg{err: err}
			}
		}
		err := os.WriteFile(path, b.Bytes(), 0o644) //nolint:gosec // report in the working directory
		return saveResultMsg{path: path, err: err}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	// header, status line, footer
	contentHeight := max(m.height-3, 3)
	switch m.mode {
	case viewFeed:
		b.WriteString(m.feed.view(m.width, contentHeight))
	case viewRate:
		b.WriteString(m.rate.view(m.width, m.lastSnap, m.stats, m.workers))
	case viewErrors:
		b.WriteString(m.feed.errorsView(m.width, contentHeight))
	}

	if m.statusMsg != "" {
		b.WriteString(styleStatus.Render("  " + m.statusMsg))
	}
	b.WriteByte('\n')
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	snap := m.lastSnap
	label := styleHeaderLabel.Render("xcp")

	if m.done {
		return styleHeader.Render(fmt.Sprintf("  %s  %s  %s  %s / %s files  %s",
			label,
			styleIconDone.Render("done"),
			ui.FormatBytes(snap.BytesDone),
			ui.FormatCount(snap.FilesDone),
			ui.FormatCount(snap.FilesTotal),
			ui.FormatDuration(snap.Elapsed),
		))
	}

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesDone) / float64(snap.BytesTotal)
	}
	return styleHeader.Render(fmt.Sprintf("  %s  %3.0f%%  %s  %s / %s  %s / %s files  %s  eta %s",
		label,
		pct*100,
		styleProgressFilled.Render(ui.ProgressBar(pct, 10)),
		ui.FormatBytes(snap.BytesDone),
		ui.FormatBytes(snap.BytesTotal),
		ui.FormatCount(snap.FilesDone),
		ui.FormatCount(snap.FilesTotal),
		ui.FormatRate(m.lastSpeed),
		ui.FormatETA(m.lastETA),
	))
}

func (m Model) renderFooter() string {
	binds := [][2]string{{"q", "cancel"}, {"f", "feed"}, {"r", "rate"}, {"e", "errors"}, {"j/k", "scroll"}}
	if m.done {
		binds = [][2]string{{"q", "quit"}, {"s", "save"}, {"f", "feed"}, {"e", "errors"}, {"j/k", "scroll"}}
	}
	parts := make([]string, 0, len(binds))
	for _, kb := range binds {
		parts = append(parts, styleKeybindKey.Render(kb[0])+" "+styleKeybindLabel.Render(kb[1]))
	}
	return "  " + strings.Join(parts, "   ")
}
