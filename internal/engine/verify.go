package engine

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/stats"
)

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Failures []Failure
	Verified int64
}

type verifier struct {
	stats   *stats.Collector
	events  chan<- event.Event
	logger  *slog.Logger
	workers int
}

// run re-reads every copied regular file on both sides and compares BLAKE3
// digests, hashing up to v.workers files at once.
func (v *verifier) run(ctx context.Context, outcomes []CopyOutcome) VerifyResult {
	emitEvent(v.events, event.Event{Type: event.VerifyStarted})

	var (
		mu     sync.Mutex
		result VerifyResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(v.workers, 1))

	for _, o := range outcomes {
		if o.Result != Copied || o.Task.Kind != File {
			continue
		}
		task := o.Task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := sameContent(gctx, task.SrcPath, task.DstPath)
			if cerr := gctx.Err(); cerr != nil {
				return cerr
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, Failure{Path: task.RelPath, Kind: VerifyMismatch, Err: err})
				v.stats.AddFilesVerifyFailed(1)
				v.logger.Warn("verify failed", "path", task.RelPath, "error", err)
				emitEvent(v.events, event.Event{Type: event.VerifyFailed, Path: task.RelPath, Error: err})
				return nil
			}
			result.Verified++
			v.stats.AddFilesVerified(1)
			emitEvent(v.events, event.Event{Type: event.VerifyOK, Path: task.RelPath})
			return nil
		})
	}
	// Only cancellation makes a goroutine return an error.
	_ = g.Wait()

	slices.SortFunc(result.Failures, func(a, b Failure) int { return strings.Compare(a.Path, b.Path) })
	return result
}
