package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/platform"
	"github.com/bamsammich/xcp/internal/stats"
)

// WorkerConfig controls worker behavior.
type WorkerConfig struct {
	Selector   *platform.Selector
	Stats      *stats.Collector
	Events     chan<- event.Event
	Logger     *slog.Logger
	Overwrite  OverwritePolicy
	NumWorkers int
	// PreserveOwner carries uid/gid over; only meaningful when privileged.
	PreserveOwner bool
	NoTimes       bool
	Fsync         bool
}

// WorkerPool executes copy tasks. Each task is owned by exactly one worker
// from dequeue to outcome.
type WorkerPool struct {
	cfg  WorkerConfig
	tmps *tmpRegistry
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(cfg WorkerConfig) *WorkerPool {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = platform.NewSelector(platform.Options{Logger: cfg.Logger})
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Overwrite == "" {
		cfg.Overwrite = OverwriteFail
	}
	return &WorkerPool{cfg: cfg, tmps: newTmpRegistry()}
}

// Run starts NumWorkers workers that drain q, sending one outcome per task
// to outcomes. It blocks until q is closed and drained, or ctx is
// cancelled; tasks still queued at cancellation are dropped.
func (wp *WorkerPool) Run(ctx context.Context, q *Queue, outcomes chan<- CopyOutcome) {
	var wg sync.WaitGroup
	for id := range wp.cfg.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := q.Pop(ctx)
				if !ok {
					return
				}
				outcomes <- wp.Execute(ctx, task, id)
			}
		}()
	}
	wg.Wait()
}

// Close removes temporary files a cancelled worker left behind.
func (wp *WorkerPool) Close() {
	if n := wp.tmps.cleanup(); n > 0 {
		wp.cfg.Logger.Debug("removed leftover temporary files", "count", n)
	}
}

// Execute runs a single task to completion on the calling goroutine.
func (wp *WorkerPool) Execute(ctx context.Context, task CopyTask, workerID int) CopyOutcome {
	switch task.Kind {
	case File:
		return wp.copyFile(ctx, task, workerID)
	case Symlink:
		return wp.copySymlink(ctx, task, workerID)
	case Directory:
		// Directories are materialized by the walker.
		return CopyOutcome{Task: task, Result: Copied}
	default:
		return wp.skipped(task, workerID, SpecialFile,
			fmt.Errorf("not copying %s file", task.Mode.Type()))
	}
}

func (wp *WorkerPool) copyFile(ctx context.Context, task CopyTask, workerID int) CopyOutcome {
	if err := ctx.Err(); err != nil {
		return wp.skipped(task, workerID, Cancelled, err)
	}
	emitEvent(wp.cfg.Events, event.Event{Type: event.FileStarted, Path: task.RelPath, Size: task.Size, WorkerID: workerID})

	src, err := os.Open(task.SrcPath)
	if err != nil {
		return wp.sourceError(task, workerID, err)
	}
	defer src.Close()

	// The walk-time size bounds the copy so bytes done never pass the
	// scanned total. A source that shrank since is trimmed in writeData.
	info, err := src.Stat()
	if err != nil {
		return wp.sourceError(task, workerID, err)
	}
	size := min(info.Size(), task.Size)
	if info.Size() > task.Size {
		wp.cfg.Logger.Warn("source grew since scan, copying scanned length",
			"path", task.RelPath, "scanned", task.Size, "current", info.Size())
	}

	if outcome, proceed := wp.checkDestination(task, workerID, size, info.ModTime()); !proceed {
		return outcome
	}

	tmpPath := tmpPathFor(task.DstPath)
	wp.tmps.register(tmpPath)
	defer func() {
		wp.tmps.deregister(tmpPath)
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return wp.failed(task, workerID, classifyDest(err), fmt.Errorf("create %s: %w", tmpPath, err))
	}

	res, err := wp.writeData(ctx, src, dst, task, size)
	if err != nil {
		dst.Close()
		if kind := Classify(err); kind == Cancelled {
			return wp.skipped(task, workerID, kind, err)
		}
		// A missing path mid-copy is the destination directory going away.
		return wp.failed(task, workerID, classifyDest(err), err)
	}
	if err := dst.Close(); err != nil {
		return wp.failed(task, workerID, IOFailure, fmt.Errorf("close %s: %w", tmpPath, err))
	}
	if err := os.Rename(tmpPath, task.DstPath); err != nil {
		return wp.failed(task, workerID, classifyDest(err), fmt.Errorf("rename to %s: %w", task.DstPath, err))
	}

	wp.cfg.Stats.AddBytesDone(res.Bytes)
	wp.cfg.Stats.AddFilesCopied(1)
	wp.cfg.Stats.AddFilesDone(1)
	emitEvent(wp.cfg.Events, event.Event{
		Type:     event.FileCompleted,
		Path:     task.RelPath,
		Size:     res.Bytes,
		Method:   res.Method.String(),
		WorkerID: workerID,
	})
	return CopyOutcome{Task: task, Result: Copied, Bytes: res.Bytes, Method: res.Method}
}

// writeData fills the temporary file: extend to size, run the strategy
// chain, trim if the source shrank, then apply metadata.
func (wp *WorkerPool) writeData(
	ctx context.Context,
	src, dst *os.File,
	task CopyTask,
	size int64,
) (platform.CopyResult, error) {
	if err := dst.Truncate(size); err != nil {
		return platform.CopyResult{}, fmt.Errorf("truncate %s: %w", dst.Name(), err)
	}
	res, err := wp.cfg.Selector.Copy(ctx, src, dst, size)
	if err != nil {
		return res, fmt.Errorf("copy %s: %w", task.RelPath, err)
	}
	if res.Bytes < size {
		wp.cfg.Logger.Warn("source shrank during copy", "path", task.RelPath, "expected", size, "copied", res.Bytes)
		if err := dst.Truncate(res.Bytes); err != nil {
			return res, fmt.Errorf("truncate %s: %w", dst.Name(), err)
		}
	}
	if wp.cfg.Fsync {
		if err := dst.Sync(); err != nil {
			return res, fmt.Errorf("fsync %s: %w", dst.Name(), err)
		}
	}
	opts := metadataOpts{times: !wp.cfg.NoTimes, owner: wp.cfg.PreserveOwner}
	if err := applyFileMetadata(dst, task, opts); err != nil {
		return res, fmt.Errorf("metadata %s: %w", task.RelPath, err)
	}
	return res, nil
}

func (wp *WorkerPool) copySymlink(ctx context.Context, task CopyTask, workerID int) CopyOutcome {
	if err := ctx.Err(); err != nil {
		return wp.skipped(task, workerID, Cancelled, err)
	}

	existing, err := os.Lstat(task.DstPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return wp.failed(task, workerID, classifyDest(err), err)
	case existing.IsDir():
		return wp.failed(task, workerID, DestinationExists, fmt.Errorf("%s is a directory", task.DstPath))
	default:
		if outcome, proceed := wp.symlinkPolicy(task, workerID); !proceed {
			return outcome
		}
		if err := os.Remove(task.DstPath); err != nil {
			return wp.failed(task, workerID, classifyDest(err), err)
		}
	}

	if err := os.Symlink(task.LinkTarget, task.DstPath); err != nil {
		return wp.failed(task, workerID, classifyDest(err), fmt.Errorf("symlink %s -> %s: %w", task.DstPath, task.LinkTarget, err))
	}
	opts := metadataOpts{times: !wp.cfg.NoTimes, owner: wp.cfg.PreserveOwner}
	if err := applyPathMetadata(task.DstPath, task, opts); err != nil {
		wp.cfg.Logger.Debug("symlink metadata not applied", "path", task.RelPath, "error", err)
	}

	wp.cfg.Stats.AddFilesCopied(1)
	wp.cfg.Stats.AddFilesDone(1)
	emitEvent(wp.cfg.Events, event.Event{Type: event.FileCompleted, Path: task.RelPath, WorkerID: workerID})
	return CopyOutcome{Task: task, Result: Copied}
}

// symlinkPolicy applies the overwrite policy to an existing non-directory
// at a symlink's destination. Update replaces unless the existing entry is
// a symlink with the same target.
func (wp *WorkerPool) symlinkPolicy(task CopyTask, workerID int) (CopyOutcome, bool) {
	switch wp.cfg.Overwrite {
	case OverwriteReplace:
		return CopyOutcome{}, true
	case OverwriteSkip:
		return wp.skipped(task, workerID, DestinationExists, nil), false
	case OverwriteUpdate:
		if target, err := os.Readlink(task.DstPath); err == nil && target == task.LinkTarget {
			return wp.skipped(task, workerID, UpToDate, nil), false
		}
		return CopyOutcome{}, true
	default:
		return wp.failed(task, workerID, DestinationExists, fmt.Errorf("%s already exists", task.DstPath)), false
	}
}

// checkDestination applies the overwrite policy for a regular file. The
// returned bool is true when the copy should go ahead.
func (wp *WorkerPool) checkDestination(task CopyTask, workerID int, size int64, modTime time.Time) (CopyOutcome, bool) {
	existing, err := os.Lstat(task.DstPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CopyOutcome{}, true
	case err != nil:
		return wp.failed(task, workerID, classifyDest(err), err), false
	case existing.IsDir():
		return wp.failed(task, workerID, DestinationExists, fmt.Errorf("%s is a directory", task.DstPath)), false
	}

	switch wp.cfg.Overwrite {
	case OverwriteReplace:
		return CopyOutcome{}, true
	case OverwriteSkip:
		return wp.skipped(task, workerID, DestinationExists, nil), false
	case OverwriteUpdate:
		if existing.Size() == size && !modTime.After(existing.ModTime()) {
			return wp.skipped(task, workerID, UpToDate, nil), false
		}
		return CopyOutcome{}, true
	default:
		return wp.failed(task, workerID, DestinationExists, fmt.Errorf("%s already exists", task.DstPath)), false
	}
}

// sourceError handles a failure to open or stat the source. A vanished
// source is a skip, not a failure.
func (wp *WorkerPool) sourceError(task CopyTask, workerID int, err error) CopyOutcome {
	kind := Classify(err)
	if kind == SourceVanished {
		return wp.skipped(task, workerID, kind, err)
	}
	return wp.failed(task, workerID, kind, err)
}

func (wp *WorkerPool) skipped(task CopyTask, workerID int, kind ErrorKind, err error) CopyOutcome {
	wp.cfg.Stats.AddFilesSkipped(1)
	wp.cfg.Stats.AddFilesDone(1)
	wp.cfg.Logger.Info("skipped", "path", task.RelPath, "reason", kind)
	emitEvent(wp.cfg.Events, event.Event{
		Type:     event.FileSkipped,
		Path:     task.RelPath,
		Reason:   kind.String(),
		Error:    err,
		WorkerID: workerID,
	})
	return CopyOutcome{Task: task, Result: Skipped, Kind: kind, Err: err}
}

func (wp *WorkerPool) failed(task CopyTask, workerID int, kind ErrorKind, err error) CopyOutcome {
	wp.cfg.Stats.AddFilesFailed(1)
	wp.cfg.Stats.AddFilesDone(1)
	wp.cfg.Logger.Warn("copy failed", "path", task.RelPath, "kind", kind, "error", err)
	emitEvent(wp.cfg.Events, event.Event{
		Type:     event.FileFailed,
		Path:     task.RelPath,
		Reason:   kind.String(),
		Error:    err,
		WorkerID: workerID,
	})
	return CopyOutcome{Task: task, Result: Failed, Kind: kind, Err: err}
}
