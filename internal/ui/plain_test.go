package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

func runPlain(t *testing.T, verbose bool, evs ...Event) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector(), verbose: verbose}

	events := make(chan Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	require.NoError(t, p.Run(events))
	return out.String(), errOut.String()
}

func TestPlainPresenterCompletedOnlyWhenVerbose(t *testing.T) {
	evs := []Event{
		{Type: event.FileCompleted, Path: "dir/file.txt", Size: 1024, Method: "copy_file_range"},
		{Type: event.FileCompleted, Path: "dir/big.bin", Size: 100 << 20, Method: "sparse_read_write"},
	}

	out, _ := runPlain(t, false, evs...)
	assert.Empty(t, out)

	out, _ = runPlain(t, true, evs...)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "dir/file.txt  1.0 KiB  cfr", lines[0])
	assert.Equal(t, "dir/big.bin  100.0 MiB  sparse", lines[1])
}

func TestPlainPresenterFileFailed(t *testing.T) {
	out, _ := runPlain(t, false, Event{
		Type:   event.FileFailed,
		Path:   "fail.txt",
		Reason: "permission_denied",
		Error:  assert.AnError,
	})
	assert.Contains(t, out, "fail.txt  failed (permission_denied)")
	assert.Contains(t, out, assert.AnError.Error())
}

func TestPlainPresenterFileSkipped(t *testing.T) {
	out, _ := runPlain(t, false, Event{Type: event.FileSkipped, Path: "skip.txt", Reason: "destination_exists"})
	assert.Equal(t, "skip.txt  skipped (destination_exists)\n", out)
}

func TestPlainPresenterDirCreated(t *testing.T) {
	out, _ := runPlain(t, true, Event{Type: event.DirCreated, Path: "sub"})
	assert.Equal(t, "sub/\n", out)
}

func TestPlainPresenterVerify(t *testing.T) {
	out, _ := runPlain(t, false,
		Event{Type: event.VerifyStarted},
		Event{Type: event.VerifyOK, Path: "good.txt"},
		Event{Type: event.VerifyFailed, Path: "bad/file.txt"},
	)
	assert.Contains(t, out, "verifying...")
	assert.Contains(t, out, "MISMATCH: bad/file.txt")
	assert.NotContains(t, out, "good.txt")
}

func TestPlainPresenterProgress(t *testing.T) {
	var errOut bytes.Buffer
	c := stats.NewCollector()
	p := &plainPresenter{errW: &errOut, stats: c}

	c.AddFilesScanned(12)
	p.printProgress()
	assert.Equal(t, "progress: scanning, 12 files found\n", errOut.String())

	errOut.Reset()
	c.SetTotals(4, 4096)
	c.AddBytesDone(1024)
	c.AddFilesDone(1)
	p.printProgress()
	assert.Contains(t, errOut.String(), "progress: 25% 1.0 KiB/4.0 KiB 1/4 files")
}

func TestPlainPresenterSummary(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesCopied(100)
	collector.AddBytesDone(1024 * 1024)

	p := &plainPresenter{stats: collector}
	s := p.Summary()
	assert.Contains(t, s, "files 100")
	assert.Contains(t, s, "size 1.0 MiB")
	assert.Contains(t, s, "errors 0")
}

func TestMethodLabel(t *testing.T) {
	assert.Equal(t, "-", methodLabel(""))
	assert.Equal(t, "cfr", methodLabel("copy_file_range"))
	assert.Equal(t, "rw", methodLabel("read_write"))
	assert.Equal(t, "reflink", methodLabel("reflink"))
}
