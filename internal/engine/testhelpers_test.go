package engine_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/xcp/internal/event"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320000 bytes)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	link.txt          → root.txt (symlink)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	writeFile(t, filepath.Join(root, "root.txt"), "root file content")
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "big.bin"),
		bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000),
		0o644,
	))
	writeFile(t, filepath.Join(root, "sub", "mid.txt"), "middle file content")
	writeFile(t, filepath.Join(root, "sub", "deep", "leaf.txt"), "leaf file content")
	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

const (
	testTreeFiles = 5
	testTreeBytes = 17 + 320000 + 19 + 17
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// verifyTreeCopy checks that dstRoot contains an exact copy of the test tree
// created by createTestTree under srcRoot.
func verifyTreeCopy(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()

	files := []string{
		"root.txt",
		"big.bin",
		filepath.Join("sub", "mid.txt"),
		filepath.Join("sub", "deep", "leaf.txt"),
	}
	for _, rel := range files {
		srcData, err := os.ReadFile(filepath.Join(srcRoot, rel))
		require.NoError(t, err, "read src %s", rel)
		dstData, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err, "read dst %s", rel)
		require.Equal(t, srcData, dstData, "content mismatch: %s", rel)
	}

	for _, dir := range []string{"sub", filepath.Join("sub", "deep")} {
		info, err := os.Stat(filepath.Join(dstRoot, dir))
		require.NoError(t, err, "stat dir %s", dir)
		require.True(t, info.IsDir(), "%s should be a directory", dir)
	}

	target, err := os.Readlink(filepath.Join(dstRoot, "link.txt"))
	require.NoError(t, err, "readlink link.txt")
	require.Equal(t, "root.txt", target)
}

// createSparseFile creates a file of size bytes with dataSize bytes of 'A'
// at the start and dataSize bytes of 'B' at the end, leaving a hole between.
func createSparseFile(t *testing.T, path string, size, dataSize int64) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(size))
	_, err = unix.Pwrite(int(f.Fd()), bytes.Repeat([]byte("A"), int(dataSize)), 0)
	require.NoError(t, err)
	_, err = unix.Pwrite(int(f.Fd()), bytes.Repeat([]byte("B"), int(dataSize)), size-dataSize)
	require.NoError(t, err)
}

// allocatedBytes returns the space actually allocated to path.
func allocatedBytes(t *testing.T, path string) int64 {
	t.Helper()
	var st unix.Stat_t
	require.NoError(t, unix.Stat(path, &st))
	return st.Blocks * 512
}

// collectEvents creates a buffered event channel that records all events.
// The getter closes the channel and waits for the drain goroutine, so it is
// safe to read the slice. It may be called at most once.
func collectEvents(t *testing.T) (chan<- event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 4096)
	var collected []event.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			collected = append(collected, ev)
		}
	}()
	var once sync.Once
	drain := func() {
		once.Do(func() { close(ch) })
		<-done
	}
	t.Cleanup(drain)
	return ch, func() []event.Event {
		drain()
		return collected
	}
}

// findTmpFiles returns any .xcp-tmp files found under root.
func findTmpFiles(t *testing.T, root string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(d.Name(), ".xcp-tmp") {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

// verifyExistingFilesMatch checks that every regular file in dstRoot that also
// exists in srcRoot has identical content. Files only in dstRoot are ignored.
func verifyExistingFilesMatch(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()
	err := filepath.WalkDir(dstRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Type()&os.ModeSymlink != 0 {
			return err
		}
		rel, err := filepath.Rel(dstRoot, path)
		require.NoError(t, err)

		srcPath := filepath.Join(srcRoot, rel)
		if _, statErr := os.Stat(srcPath); os.IsNotExist(statErr) {
			return nil
		}
		require.Equal(t, readFile(t, srcPath), readFile(t, path), "partial copy left behind: %s", rel)
		return nil
	})
	require.NoError(t, err)
}

func skipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
}
