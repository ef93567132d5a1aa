package tui

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

func newTestModel(t *testing.T) (Model, chan event.Event, *int) {
	t.Helper()
	ch := make(chan event.Event, 16)
	c := stats.NewCollector()
	cancels := 0
	m := NewModel(ch, c, Config{
		Workers: 2,
		SrcRoot: "/src",
		DstRoot: "/dst",
		Cancel:  func() { cancels++ },
	})
	return m, ch, &cancels
}

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	require.True(t, ok)
	return mm, cmd
}

func TestModel_ViewSwitching(t *testing.T) {
	m, _, _ := newTestModel(t)
	assert.Equal(t, viewFeed, m.mode)

	m, _ = update(t, m, keyMsg('r'))
	assert.Equal(t, viewRate, m.mode)
	assert.Contains(t, m.View(), "workers")

	m, _ = update(t, m, keyMsg('e'))
	assert.Equal(t, viewErrors, m.mode)
	assert.Contains(t, m.View(), "no errors")

	m, _ = update(t, m, keyMsg('f'))
	assert.Equal(t, viewFeed, m.mode)
}

func TestModel_EventsFeedViews(t *testing.T) {
	m, ch, _ := newTestModel(t)

	m, cmd := update(t, m, engineEventMsg(event.Event{Type: event.FileStarted, Path: "a", WorkerID: 1}))
	require.NotNil(t, cmd, "next event read is scheduled")
	assert.Contains(t, m.feed.inFlight, 1)
	assert.True(t, m.rate.busy[1])

	ch <- event.Event{Type: event.FileCompleted, Path: "a", WorkerID: 1}
	msg := cmd()
	assert.Equal(t, engineEventMsg(event.Event{Type: event.FileCompleted, Path: "a", WorkerID: 1}), msg)

	close(ch)
	assert.Equal(t, channelDoneMsg{}, readNextEvent(ch)())
}

func TestModel_QuitWhileRunningCancels(t *testing.T) {
	m, _, cancels := newTestModel(t)

	m, cmd := update(t, m, keyMsg('q'))
	assert.Nil(t, cmd, "first q waits for the engine to wind down")
	assert.Equal(t, 1, *cancels)
	assert.True(t, m.cancelling)
	assert.False(t, m.quitting)

	m, cmd = update(t, m, channelDoneMsg{})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestModel_QuitWhenDone(t *testing.T) {
	m, _, cancels := newTestModel(t)
	m, _ = update(t, m, channelDoneMsg{})
	assert.True(t, m.done)
	assert.Contains(t, m.View(), "done")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Zero(t, *cancels)
}

func TestModel_WindowSize(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 40, m.height)
}

func TestModel_SaveOnlyWhenDone(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := update(t, m, keyMsg('s'))
	assert.Nil(t, cmd)
}

func TestModel_WriteReport(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = update(t, m, engineEventMsg(event.Event{
		Type: event.FileFailed, Path: "bad.bin", Reason: "io", Error: errors.New("input/output error"),
	}))
	m, _ = update(t, m, channelDoneMsg{})

	out := filepath.Join(t.TempDir(), "report.log")
	msg := m.writeReport(out)()
	res, ok := msg.(saveResultMsg)
	require.True(t, ok)
	require.NoError(t, res.err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "source:      /src")
	assert.Contains(t, string(data), "bad.bin")
	assert.Contains(t, string(data), "input/output error")

	m, _ = update(t, m, res)
	assert.Contains(t, m.statusMsg, "saved to")
}

func TestModel_TickStopsWhenDone(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := update(t, m, tickMsg{})
	assert.NotNil(t, cmd)

	m, _ = update(t, m, channelDoneMsg{})
	_, cmd = update(t, m, tickMsg{})
	assert.Nil(t, cmd)
}
