package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

func TestRateView_BusyWorkers(t *testing.T) {
	r := newRateView()
	r.handleEvent(event.Event{Type: event.FileStarted, WorkerID: 1})
	r.handleEvent(event.Event{Type: event.FileStarted, WorkerID: 3})
	assert.True(t, r.busy[1])
	assert.True(t, r.busy[3])

	r.handleEvent(event.Event{Type: event.FileCompleted, WorkerID: 1})
	assert.False(t, r.busy[1])
	assert.Len(t, r.busy, 1)
}

func TestRateView_View(t *testing.T) {
	c := stats.NewCollector()
	c.SetTotals(10, 1<<20)
	c.AddFilesDone(4)
	c.AddBytesDone(4096)
	c.Tick()

	r := newRateView()
	r.handleEvent(event.Event{Type: event.FileStarted, WorkerID: 0})

	out := r.view(60, c.Snapshot(), c, 4)
	assert.Contains(t, out, "4 / 10 files")
	assert.Contains(t, out, "workers")
	assert.Contains(t, out, "▪")
	assert.Contains(t, out, "□")
}
