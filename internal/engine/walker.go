package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

// Filter decides whether an entry takes part in the copy. relPath is
// slash-separated and relative to the source root. Returning false for a
// directory prunes its whole subtree.
type Filter interface {
	Match(relPath string, isDir bool, size int64) bool
}

// WalkerConfig configures a Walker.
type WalkerConfig struct {
	Filter      Filter
	Stats       *stats.Collector
	Events      chan<- event.Event
	Logger      *slog.Logger
	SrcRoot     string
	DstRoot     string
	Overwrite   OverwritePolicy
	Dereference bool
}

type devIno struct {
	dev uint64
	ino uint64
}

// Walker turns a source tree into a Manifest. Destination directories are
// created as they are discovered, so by the time a file task is dispatched
// its parent exists. Directories are created owner-writable; their real
// mode is applied after copying.
type Walker struct {
	cfg      WalkerConfig
	manifest Manifest
	// ancestors holds the directories on the current path when following
	// symlinks, to catch loops.
	ancestors map[devIno]struct{}
}

// NewWalker returns a Walker for cfg.
func NewWalker(cfg WalkerConfig) *Walker {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	return &Walker{cfg: cfg, ancestors: make(map[devIno]struct{})}
}

// Walk scans the source root. Errors on individual entries are recorded in
// the manifest and the walk carries on; a cancelled context ends the walk
// early with whatever was gathered.
func (w *Walker) Walk(ctx context.Context) Manifest {
	info, err := w.stat(w.cfg.SrcRoot)
	if err != nil {
		w.fail(".", WalkError, err)
		return w.manifest
	}

	task := w.newTask(w.cfg.SrcRoot, w.cfg.DstRoot, ".", info)
	if task.Kind != Directory {
		w.addEntry(task)
		return w.manifest
	}

	w.manifest.Tasks = append(w.manifest.Tasks, task)
	if w.materializeDir(task, true) {
		w.enter(info)
		w.walkDir(ctx, w.cfg.SrcRoot, w.cfg.DstRoot, "")
	}
	return w.manifest
}

func (w *Walker) walkDir(ctx context.Context, srcDir, dstDir, rel string) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		w.fail(relOrRoot(rel), WalkError, err)
		return
	}

	// os.ReadDir sorts by name.
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		name := entry.Name()
		w.visit(ctx, filepath.Join(srcDir, name), filepath.Join(dstDir, name), path.Join(rel, name))
	}
}

func (w *Walker) visit(ctx context.Context, src, dst, rel string) {
	info, err := w.stat(src)
	if err != nil {
		w.fail(rel, WalkError, err)
		return
	}
	if w.cfg.Filter != nil && !w.cfg.Filter.Match(rel, info.IsDir(), info.Size()) {
		return
	}

	task := w.newTask(src, dst, rel, info)
	if task.Kind != Directory {
		w.addEntry(task)
		return
	}

	if w.cfg.Dereference {
		if _, seen := w.ancestors[keyOf(info)]; seen {
			w.fail(rel, WalkError, fmt.Errorf("%s: filesystem loop detected", src))
			return
		}
	}

	w.manifest.Tasks = append(w.manifest.Tasks, task)
	if !w.materializeDir(task, false) {
		return
	}
	w.enter(info)
	w.walkDir(ctx, src, dst, rel)
	w.leave(info)
}

// addEntry records a non-directory task.
func (w *Walker) addEntry(task CopyTask) {
	if task.Kind == Symlink {
		target, err := os.Readlink(task.SrcPath)
		if err != nil {
			w.fail(task.RelPath, WalkError, err)
			return
		}
		task.LinkTarget = target
	}
	w.manifest.Tasks = append(w.manifest.Tasks, task)
	w.manifest.TotalFiles++
	if task.Kind == File {
		w.manifest.TotalBytes += task.Size
	}
	w.cfg.Stats.AddFilesScanned(1)
}

// materializeDir makes sure task.DstPath is a directory, honoring the
// overwrite policy when something else is in the way. It reports whether the
// subtree should be walked.
func (w *Walker) materializeDir(task CopyTask, root bool) bool {
	existing, err := os.Lstat(task.DstPath)
	switch {
	case err == nil && existing.IsDir():
		w.manifest.Dirs = append(w.manifest.Dirs, task)
		return true
	case err == nil:
		switch w.cfg.Overwrite {
		case OverwriteReplace:
			if err := os.Remove(task.DstPath); err != nil {
				w.fail(task.RelPath, classifyDest(err), err)
				return false
			}
		case OverwriteSkip:
			w.cfg.Logger.Info("skipping directory, destination is not a directory", "path", task.RelPath)
			emitEvent(w.cfg.Events, event.Event{Type: event.FileSkipped, Path: task.RelPath, Reason: DestinationExists.String()})
			return false
		default:
			w.fail(task.RelPath, DestinationExists, fmt.Errorf("%s exists and is not a directory", task.DstPath))
			return false
		}
	case !errors.Is(err, fs.ErrNotExist):
		w.fail(task.RelPath, classifyDest(err), err)
		return false
	}

	mkdir := os.Mkdir
	if root {
		mkdir = os.MkdirAll
	}
	if err := mkdir(task.DstPath, dirCreateMode(task.Mode)); err != nil {
		w.fail(task.RelPath, classifyDest(err), err)
		return false
	}

	w.manifest.Dirs = append(w.manifest.Dirs, task)
	w.manifest.DirsCreated++
	w.cfg.Stats.AddDirsCreated(1)
	emitEvent(w.cfg.Events, event.Event{Type: event.DirCreated, Path: task.RelPath})
	return true
}

// dirCreateMode keeps the owner able to populate the directory.
func dirCreateMode(m os.FileMode) os.FileMode {
	return m.Perm() | 0o700
}

func (w *Walker) fail(rel string, kind ErrorKind, err error) {
	w.cfg.Logger.Warn("walk error", "path", rel, "kind", kind, "error", err)
	w.manifest.Failures = append(w.manifest.Failures, Failure{Path: rel, Kind: kind, Err: err})
	w.cfg.Stats.AddFilesFailed(1)
	emitEvent(w.cfg.Events, event.Event{Type: event.FileFailed, Path: rel, Error: err, Reason: kind.String()})
}

func (w *Walker) stat(p string) (os.FileInfo, error) {
	if w.cfg.Dereference {
		return os.Stat(p)
	}
	return os.Lstat(p)
}

func (w *Walker) enter(info os.FileInfo) {
	if w.cfg.Dereference {
		w.ancestors[keyOf(info)] = struct{}{}
	}
}

func (w *Walker) leave(info os.FileInfo) {
	if w.cfg.Dereference {
		delete(w.ancestors, keyOf(info))
	}
}

func (w *Walker) newTask(src, dst, rel string, info os.FileInfo) CopyTask {
	task := CopyTask{
		SrcPath: src,
		DstPath: dst,
		RelPath: rel,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		AccTime: info.ModTime(),
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		task.UID = st.Uid
		task.GID = st.Gid
		task.AccTime = accessTime(st)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		task.Kind = Directory
	case mode.IsRegular():
		task.Kind = File
	case mode&os.ModeSymlink != 0:
		task.Kind = Symlink
	default:
		task.Kind = Other
	}
	if task.Kind != File {
		task.Size = 0
	}
	return task
}

func keyOf(info os.FileInfo) devIno {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return devIno{}
	}
	return devIno{dev: deviceOf(st), ino: st.Ino}
}

func relOrRoot(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}
