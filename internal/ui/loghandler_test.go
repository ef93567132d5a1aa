package ui_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/ui"
)

// failingHandler accepts everything and fails every write.
type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("disk full")
}

func TestMultiHandler_Routing(t *testing.T) {
	tests := []struct {
		level     slog.Level
		wantText  bool
		wantJSON  bool
		wantAnyOn bool
	}{
		{level: slog.LevelDebug, wantJSON: true, wantAnyOn: true},
		{level: slog.LevelInfo, wantJSON: true, wantAnyOn: true},
		{level: slog.LevelWarn, wantText: true, wantJSON: true, wantAnyOn: true},
		{level: slog.LevelError, wantText: true, wantJSON: true, wantAnyOn: true},
		{level: slog.LevelDebug - 4},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var text, js bytes.Buffer
			h := ui.NewMultiHandler(
				slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelWarn}),
				slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelDebug}),
			)
			assert.Equal(t, tt.wantAnyOn, h.Enabled(context.Background(), tt.level))

			slog.New(h).Log(context.Background(), tt.level, "copy failed", "path", "a/b")
			assert.Equal(t, tt.wantText, text.Len() > 0, "text handler")
			assert.Equal(t, tt.wantJSON, js.Len() > 0, "json handler")
		})
	}
}

func TestMultiHandler_EventRecord(t *testing.T) {
	var js bytes.Buffer
	logger := slog.New(ui.NewMultiHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	logger.Debug("xcp.event", "event", event.Event{
		Type:     event.FileCompleted,
		Path:     "sub/d",
		Size:     3,
		Method:   "copy_file_range",
		WorkerID: 1,
	})

	var rec struct {
		Msg   string         `json:"msg"`
		Event map[string]any `json:"event"`
	}
	require.NoError(t, json.Unmarshal(js.Bytes(), &rec))
	assert.Equal(t, "xcp.event", rec.Msg)
	assert.Equal(t, "FileCompleted", rec.Event["type"])
	assert.Equal(t, "sub/d", rec.Event["path"])
	assert.Equal(t, "copy_file_range", rec.Event["method"])
}

func TestMultiHandler_JoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	h := ui.NewMultiHandler(
		failingHandler{},
		slog.NewTextHandler(&buf, nil),
		failingHandler{},
	)

	rec := slog.NewRecord(time.Time{}, slog.LevelInfo, "msg", 0)
	err := h.Handle(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, buf.String(), "msg=msg", "healthy handlers still write")
}

func TestMultiHandler_AttrsAndGroups(t *testing.T) {
	var text, js bytes.Buffer
	base := ui.NewMultiHandler(
		slog.NewTextHandler(&text, nil),
		slog.NewJSONHandler(&js, nil),
	)
	logger := slog.New(base.WithAttrs([]slog.Attr{slog.String("run", "1")}).WithGroup("xcp"))
	logger.Info("walk complete", "files", 4)

	assert.Contains(t, text.String(), "run=1")
	assert.Contains(t, text.String(), "xcp.files=4")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &rec))
	assert.Equal(t, "1", rec["run"])
	group, ok := rec["xcp"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 4, group["files"], 0)
}
