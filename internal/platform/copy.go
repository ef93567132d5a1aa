package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// DefaultBufferSize is the userspace buffer used by the read/write strategies.
const DefaultBufferSize = 1 << 20 // 1 MiB

const maxInterruptRetries = 3

// Job is the per-file state handed to each strategy in the chain. The
// destination has already been extended to Size.
type Job struct {
	Src     *os.File
	Dst     *os.File
	Sparse  *SparseMap
	limiter *rate.Limiter
	buf     []byte
	Size    int64
}

// Strategy copies Job.Src into Job.Dst. It returns an error wrapping
// ErrNotApplicable when it cannot serve the pair, which sends the selector on
// to the next strategy. Any other error is final.
type Strategy func(ctx context.Context, j *Job) (CopyResult, error)

// DefaultStrategies is the chain used when Options.Strategies is empty:
// kernel range copy, then hole-aware buffered copy, then a plain copy.
func DefaultStrategies() []Strategy {
	return []Strategy{RangeCopy, SparseCopy, NaiveCopy}
}

// Options configures a Selector.
type Options struct {
	Limiter    *rate.Limiter
	Logger     *slog.Logger
	Strategies []Strategy
	BufferSize int
}

// Selector runs the strategy chain for each file. It is safe for concurrent
// use; buffers are pooled per selector.
type Selector struct {
	limiter    *rate.Limiter
	logger     *slog.Logger
	bufPool    sync.Pool
	strategies []Strategy
}

// NewSelector returns a Selector for opts.
func NewSelector(opts Options) *Selector {
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Selector{
		limiter:    opts.Limiter,
		logger:     logger,
		strategies: strategies,
		bufPool: sync.Pool{
			New: func() any {
				b := make([]byte, bufSize)
				return &b
			},
		},
	}
}

// Copy copies size bytes of src into dst, which must already be size bytes
// long. Strategies are tried in order until one applies.
func (s *Selector) Copy(ctx context.Context, src, dst *os.File, size int64) (CopyResult, error) {
	if size == 0 {
		return CopyResult{Method: ReadWrite}, nil
	}

	bufp := s.bufPool.Get().(*[]byte)
	defer s.bufPool.Put(bufp)

	j := &Job{
		Src:     src,
		Dst:     dst,
		Size:    size,
		Sparse:  NewSparseMap(src, size),
		limiter: s.limiter,
		buf:     *bufp,
	}

	var lastErr error
	for _, strategy := range s.strategies {
		res, err := s.attempt(ctx, strategy, j)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrNotApplicable) {
			return res, err
		}
		s.logger.Debug("copy strategy skipped", "path", src.Name(), "reason", err)
		lastErr = err
	}
	return CopyResult{}, fmt.Errorf("no copy strategy applied: %w", lastErr)
}

// attempt runs one strategy, rerunning it when it reports EINTR. Strategies
// write at absolute offsets, so a rerun overwrites the same ranges.
func (s *Selector) attempt(ctx context.Context, strategy Strategy, j *Job) (CopyResult, error) {
	var (
		res CopyResult
		err error
	)
	for try := range maxInterruptRetries + 1 {
		res, err = strategy(ctx, j)
		if !errors.Is(err, unix.EINTR) {
			return res, err
		}
		s.logger.Debug("copy strategy interrupted", "path", j.Src.Name(), "attempt", try+1)
	}
	return res, fmt.Errorf("interrupted after %d retries: %w", maxInterruptRetries, err)
}

// throttle blocks until the limiter grants n bytes. Requests larger than the
// limiter's burst are split.
func (j *Job) throttle(ctx context.Context, n int64) error {
	if j.limiter == nil {
		return nil
	}
	burst := int64(j.limiter.Burst())
	for n > 0 {
		k := min(n, burst)
		if err := j.limiter.WaitN(ctx, int(k)); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// isFallbackErr reports whether err means "this mechanism does not work
// here" rather than a real I/O failure.
func isFallbackErr(err error) bool {
	return errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP)
}

// retryInterrupted calls fn until it returns something other than EINTR,
// giving up after maxInterruptRetries retries.
func retryInterrupted[T int | int64](fn func() (T, error)) (T, error) {
	var (
		n   T
		err error
	)
	for range maxInterruptRetries + 1 {
		n, err = fn()
		if !errors.Is(err, unix.EINTR) {
			return n, err
		}
	}
	return n, err
}
