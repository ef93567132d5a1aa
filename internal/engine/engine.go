package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/platform"
	"github.com/bamsammich/xcp/internal/stats"
)

// Config describes a copy run. Src's contents are copied to Dst: a
// directory source yields Dst as the root of the copied tree, a file source
// yields Dst as the copied file.
type Config struct {
	Filter Filter
	Events chan<- event.Event
	Logger *slog.Logger
	Src    string
	Dst    string
	// Overwrite defaults to OverwriteFail.
	Overwrite OverwritePolicy
	// Workers is the number of concurrent file copies. 1 copies
	// sequentially on the calling goroutine. 0 picks DefaultWorkers().
	Workers int
	// BufferSize is the userspace buffer for read/write copies.
	BufferSize int
	// QueueCapacity bounds pending file tasks; 0 means unbounded (the
	// number of files in the manifest).
	QueueCapacity int
	// BWLimit caps aggregate throughput in bytes per second; 0 is unlimited.
	BWLimit     int64
	Recursive   bool
	Dereference bool
	Fsync       bool
	NoTimes     bool
	Verify      bool
}

// DefaultWorkers is the worker count used when Config.Workers is 0.
func DefaultWorkers() int {
	return min(runtime.NumCPU(), 8)
}

// State is the controller's lifecycle phase.
type State int32

const (
	Idle State = iota
	Scanning
	Copying
	Finalizing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Copying:
		return "copying"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Status summarizes how a run ended.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartialFailure
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartialFailure:
		return "partial_failure"
	default:
		return "cancelled"
	}
}

// RunReport is the final account of a run. For a run that was not
// cancelled, FilesCopied+FilesSkipped+FilesFailed equals TotalFiles plus the
// walk failures.
type RunReport struct {
	Failures      []Failure
	TotalFiles    int64
	TotalBytes    int64
	FilesCopied   int64
	FilesSkipped  int64
	FilesFailed   int64
	BytesCopied   int64
	DirsCreated   int64
	FilesVerified int64
	Elapsed       time.Duration
	Status        Status
}

// Controller drives one copy run through Scanning, Copying and Finalizing.
// A Controller runs at most once.
type Controller struct {
	stats    *stats.Collector
	logger   *slog.Logger
	stop     chan struct{}
	cfg      Config
	stopOnce sync.Once
	state    atomic.Int32
	used     atomic.Bool
}

// New validates cfg and returns a Controller ready to Run. All validation
// failures are *SetupError values.
func New(cfg Config) (*Controller, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:    cfg,
		stats:  stats.NewCollector(),
		logger: cfg.Logger,
		stop:   make(chan struct{}),
	}, nil
}

// Run executes the copy operation, blocking until complete.
func Run(ctx context.Context, cfg Config) (RunReport, error) {
	c, err := New(cfg)
	if err != nil {
		return RunReport{}, err
	}
	return c.Run(ctx)
}

// Progress returns a live, lock-free view of the run's counters.
//
//nolint:ireturn // read-only view over the collector
func (c *Controller) Progress() stats.Progress { return c.stats }

// Stats exposes the collector to presenters that need rolling rates.
func (c *Controller) Stats() *stats.Collector { return c.stats }

// State reports the current lifecycle phase.
func (c *Controller) State() State { return State(c.state.Load()) }

// Cancel asks the run to stop. In-flight copies abort at their next chunk
// and queued tasks are dropped. Safe to call from any goroutine, any number
// of times, before or during Run.
func (c *Controller) Cancel() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("state", "phase", s)
}

// Run walks the source, copies every entry and applies directory metadata.
// Per-file problems land in the report; the returned error is reserved for
// misuse (a second Run).
func (c *Controller) Run(ctx context.Context) (RunReport, error) {
	if !c.used.CompareAndSwap(false, true) {
		return RunReport{}, ErrControllerUsed
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	select {
	case <-c.stop:
		cancel()
	default:
	}
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.setState(Scanning)
	emitEvent(c.cfg.Events, event.Event{Type: event.ScanStarted})
	manifest := NewWalker(WalkerConfig{
		SrcRoot:     c.cfg.Src,
		DstRoot:     c.cfg.Dst,
		Dereference: c.cfg.Dereference,
		Filter:      c.cfg.Filter,
		Overwrite:   c.cfg.Overwrite,
		Stats:       c.stats,
		Events:      c.cfg.Events,
		Logger:      c.logger,
	}).Walk(ctx)
	c.stats.SetTotals(manifest.TotalFiles, manifest.TotalBytes)
	emitEvent(c.cfg.Events, event.Event{
		Type:      event.ScanComplete,
		Total:     manifest.TotalFiles,
		TotalSize: manifest.TotalBytes,
	})
	c.logger.Debug("walk complete", "files", manifest.TotalFiles, "bytes", manifest.TotalBytes, "failures", len(manifest.Failures))

	c.setState(Copying)
	pool := NewWorkerPool(c.workerConfig())
	outcomes := c.dispatch(ctx, manifest, pool)
	pool.Close()
	cancelled := ctx.Err() != nil

	c.setState(Finalizing)
	report := c.tally(manifest, outcomes)
	c.finalizeDirs(manifest.Dirs)

	if c.cfg.Verify && !cancelled {
		v := &verifier{stats: c.stats, events: c.cfg.Events, logger: c.logger, workers: c.cfg.Workers}
		vr := v.run(ctx, outcomes)
		report.FilesVerified = vr.Verified
		c.demoteMismatches(&report, outcomes, vr.Failures)
	}

	switch {
	case cancelled:
		report.Status = StatusCancelled
	case len(report.Failures) > 0:
		report.Status = StatusPartialFailure
	default:
		report.Status = StatusSuccess
	}
	report.Elapsed = time.Since(start)
	c.setState(Done)
	return report, nil
}

func (c *Controller) workerConfig() WorkerConfig {
	var limiter *rate.Limiter
	if c.cfg.BWLimit > 0 {
		limiter = NewBWLimiter(c.cfg.BWLimit)
	}
	return WorkerConfig{
		NumWorkers: c.cfg.Workers,
		Selector: platform.NewSelector(platform.Options{
			BufferSize: c.cfg.BufferSize,
			Limiter:    limiter,
			Logger:     c.logger,
		}),
		Stats:         c.stats,
		Events:        c.cfg.Events,
		Logger:        c.logger,
		Overwrite:     c.cfg.Overwrite,
		PreserveOwner: os.Geteuid() == 0,
		NoTimes:       c.cfg.NoTimes,
		Fsync:         c.cfg.Fsync,
	}
}

// dispatch hands the manifest to the pool. With one worker every task runs
// inline, in manifest order. Otherwise file tasks go through the bounded
// queue while symlinks and special files are handled right here, since
// they need no data movement.
func (c *Controller) dispatch(ctx context.Context, m Manifest, pool *WorkerPool) []CopyOutcome {
	var inline []CopyOutcome

	if c.cfg.Workers == 1 {
		for _, task := range m.Tasks {
			if ctx.Err() != nil {
				break
			}
			if task.Kind == Directory {
				continue
			}
			inline = append(inline, pool.Execute(ctx, task, 0))
		}
		return inline
	}

	capacity := c.cfg.QueueCapacity
	if capacity <= 0 {
		capacity = int(m.TotalFiles)
	}
	q := NewQueue(capacity)
	results := make(chan CopyOutcome, c.cfg.Workers)

	go func() {
		pool.Run(ctx, q, results)
		close(results)
	}()

	var pooled []CopyOutcome
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range results {
			pooled = append(pooled, o)
		}
	}()

push:
	for _, task := range m.Tasks {
		switch task.Kind {
		case Directory:
			continue
		case File:
			if err := q.Push(ctx, task); err != nil {
				break push
			}
		default:
			if ctx.Err() != nil {
				break push
			}
			inline = append(inline, pool.Execute(ctx, task, -1))
		}
	}
	q.Close()
	<-collected

	return append(inline, pooled...)
}

func (c *Controller) tally(m Manifest, outcomes []CopyOutcome) RunReport {
	report := RunReport{
		TotalFiles:  m.TotalFiles,
		TotalBytes:  m.TotalBytes,
		DirsCreated: m.DirsCreated,
		FilesFailed: int64(len(m.Failures)),
		Failures:    slices.Clone(m.Failures),
	}
	for _, o := range outcomes {
		switch o.Result {
		case Copied:
			report.FilesCopied++
			report.BytesCopied += o.Bytes
		case Skipped:
			report.FilesSkipped++
		case Failed:
			report.FilesFailed++
			report.Failures = append(report.Failures, Failure{Path: o.Task.RelPath, Kind: o.Kind, Err: o.Err})
		}
	}
	slices.SortStableFunc(report.Failures, func(a, b Failure) int { return strings.Compare(a.Path, b.Path) })
	return report
}

// demoteMismatches moves files that failed verification from the copied
// tally to the failed one, in the report and in the live counters.
func (c *Controller) demoteMismatches(report *RunReport, outcomes []CopyOutcome, mismatches []Failure) {
	if len(mismatches) == 0 {
		return
	}
	bytesByPath := make(map[string]int64, len(outcomes))
	for _, o := range outcomes {
		if o.Result == Copied && o.Task.Kind == File {
			bytesByPath[o.Task.RelPath] = o.Bytes
		}
	}
	for _, f := range mismatches {
		n := bytesByPath[f.Path]
		report.FilesCopied--
		report.FilesFailed++
		report.BytesCopied -= n
		c.stats.AddFilesCopied(-1)
		c.stats.AddFilesFailed(1)
		c.stats.AddBytesDone(-n)
	}
	report.Failures = append(report.Failures, mismatches...)
	slices.SortStableFunc(report.Failures, func(a, b Failure) int { return strings.Compare(a.Path, b.Path) })
}

// finalizeDirs applies mode, owner and times to the directories the walk
// produced, deepest first so setting a parent's mtime is the last write to
// it and read-only modes never block a child.
func (c *Controller) finalizeDirs(dirs []CopyTask) {
	opts := metadataOpts{times: !c.cfg.NoTimes, owner: os.Geteuid() == 0}
	for _, d := range slices.Backward(dirs) {
		if err := applyPathMetadata(d.DstPath, d, opts); err != nil {
			c.logger.Warn("directory metadata not applied", "path", d.RelPath, "error", err)
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Src == "" {
		return &SetupError{Op: "source", Err: errors.New("no source given")}
	}
	if cfg.Dst == "" {
		return &SetupError{Op: "destination", Err: errors.New("no destination given")}
	}

	var (
		srcInfo os.FileInfo
		err     error
	)
	if cfg.Dereference {
		srcInfo, err = os.Stat(cfg.Src)
	} else {
		srcInfo, err = os.Lstat(cfg.Src)
	}
	if err != nil {
		return &SetupError{Op: "stat source", Path: cfg.Src, Err: err}
	}
	if srcInfo.IsDir() && !cfg.Recursive {
		return &SetupError{Op: "source", Path: cfg.Src, Err: ErrNotRecursive}
	}

	if dstInfo, err := os.Stat(cfg.Dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		return &SetupError{Op: "destination", Path: cfg.Dst, Err: ErrSameFile}
	}
	if srcInfo.IsDir() {
		inside, err := isWithin(cfg.Src, cfg.Dst)
		if err != nil {
			return &SetupError{Op: "resolve destination", Path: cfg.Dst, Err: err}
		}
		if inside {
			return &SetupError{Op: "destination", Path: cfg.Dst, Err: ErrDestInsideSource}
		}
	} else if err := os.MkdirAll(filepath.Dir(cfg.Dst), 0o755); err != nil {
		return &SetupError{Op: "create destination parent", Path: filepath.Dir(cfg.Dst), Err: err}
	}

	policy, err := ParseOverwritePolicy(string(cfg.Overwrite))
	if err != nil {
		return &SetupError{Op: "overwrite policy", Err: err}
	}
	cfg.Overwrite = policy

	switch {
	case cfg.Workers < 0:
		return &SetupError{Op: "workers", Err: fmt.Errorf("must be positive, got %d", cfg.Workers)}
	case cfg.Workers == 0:
		cfg.Workers = DefaultWorkers()
	}
	if cfg.BufferSize < 0 || cfg.BWLimit < 0 || cfg.QueueCapacity < 0 {
		return &SetupError{Op: "limits", Err: errors.New("buffer size, bandwidth limit and queue capacity must not be negative")}
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = platform.DefaultBufferSize
	}
	return nil
}

// isWithin reports whether dst resolves to root or somewhere beneath it.
// Symlinks are resolved on the longest existing prefix of dst.
func isWithin(root, dst string) (bool, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false, err
	}
	realRoot, err = filepath.Abs(realRoot)
	if err != nil {
		return false, err
	}
	realDst, err := resolveExisting(dst)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(realRoot, realDst)
	if err != nil {
		return false, nil //nolint:nilerr // unrelated paths are simply not nested
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))), nil
}

func resolveExisting(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var suffix []string
	for cur := abs; ; cur = filepath.Dir(cur) {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
	}
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
