package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bamsammich/xcp/internal/engine"
	"github.com/bamsammich/xcp/internal/event"
	"github.com/bamsammich/xcp/internal/filter"
	"github.com/bamsammich/xcp/internal/ui"
	"github.com/bamsammich/xcp/internal/ui/tui"
)

// maxFailureRows caps the failure table printed after a run.
const maxFailureRows = 20

// copyAll copies every source to its resolved target, one run per source,
// and turns the combined outcome into an exit code.
func copyAll(parent context.Context, opts *options, sources []string, dst string) error {
	jobs, err := resolveTargets(sources, dst, opts.noTargetDir)
	if err != nil {
		return err
	}

	var bufSize, bwLimit int64
	if opts.blockSize != "" {
		if bufSize, err = filter.ParseSize(opts.blockSize); err != nil {
			return fmt.Errorf("invalid --block-size: %w", err)
		}
	}
	if opts.bwLimit != "" {
		if bwLimit, err = filter.ParseSize(opts.bwLimit); err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	logger, closeLog, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		failures []ui.FailureRow
		code     = exitOK
	)
	for _, job := range jobs {
		chain, err := buildFilter(opts, job.src)
		if err != nil {
			return err
		}
		cfg := engine.Config{
			Src:         job.src,
			Dst:         job.dst,
			Recursive:   opts.recursive,
			Workers:     opts.workers,
			BufferSize:  int(bufSize),
			Overwrite:   opts.overwrite,
			BWLimit:     bwLimit,
			Dereference: opts.dereference,
			Fsync:       opts.fsync,
			NoTimes:     opts.noTimes,
			Verify:      opts.verify,
			Logger:      logger,
		}
		if chain != nil {
			cfg.Filter = chain
		}

		report, err := copyOne(ctx, opts, cfg)
		if err != nil {
			var setupErr *engine.SetupError
			if errors.As(err, &setupErr) && len(jobs) > 1 {
				// Like cp, a bad operand does not stop the others.
				fmt.Fprintf(os.Stderr, "xcp: %v\n", err)
				code = max(code, exitPartial)
				continue
			}
			return err
		}

		for _, f := range report.Failures {
			failures = append(failures, ui.FailureRow{Path: f.Path, Kind: f.Kind.String(), Error: errString(f.Err)})
		}
		switch report.Status {
		case engine.StatusCancelled:
			code = exitCancelled
		case engine.StatusPartialFailure:
			code = max(code, exitPartial)
		}
		logger.Debug("run finished",
			"src", job.src,
			"dst", job.dst,
			"status", report.Status,
			"copied", report.FilesCopied,
			"skipped", report.FilesSkipped,
			"failed", report.FilesFailed,
			"bytes", report.BytesCopied,
			"elapsed", report.Elapsed,
		)
		if code == exitCancelled {
			break
		}
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr)
		if err := ui.RenderFailures(os.Stderr, failures, maxFailureRows); err != nil {
			logger.Warn("render failure table", "error", err)
		}
	}
	if code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

// copyOne runs a single source through the engine while a presenter
// renders its events.
func copyOne(ctx context.Context, opts *options, cfg engine.Config) (engine.RunReport, error) {
	events := make(chan event.Event, 256)
	cfg.Events = events

	ctl, err := engine.New(cfg)
	if err != nil {
		return engine.RunReport{}, err
	}

	presenterEvents := (<-chan event.Event)(events)
	if opts.logFile != "" {
		presenterEvents = teeEvents(ctx, events, cfg.Logger)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = engine.DefaultWorkers()
	}

	term := ui.DetectTerminal(os.Stderr)
	var presenter ui.Presenter
	useTUI := opts.tui && term.IsTTY && !opts.quiet
	if useTUI {
		presenter = tui.NewPresenter(tui.Config{
			Stats:   ctl.Stats(),
			Workers: workers,
			SrcRoot: cfg.Src,
			DstRoot: cfg.Dst,
			Cancel:  ctl.Cancel,
		})
	} else {
		if opts.tui && !term.IsTTY {
			cfg.Logger.Warn("--tui requires a terminal, falling back to inline output")
		}
		presenter = ui.NewPresenter(ui.Config{
			Writer:     os.Stdout,
			ErrWriter:  os.Stderr,
			Stats:      ctl.Stats(),
			Workers:    workers,
			Width:      term.Width,
			IsTTY:      term.IsTTY,
			Quiet:      opts.quiet,
			Verbose:    opts.verbose,
			ForceFeed:  opts.forceFeed,
			ForceRate:  opts.forceRate,
			NoProgress: opts.noProgress,
		})
	}

	var (
		report       engine.RunReport
		runErr       error
		presenterErr error
		wg           sync.WaitGroup
	)
	if useTUI {
		// Bubble Tea owns the foreground so it can read the keyboard.
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, runErr = ctl.Run(ctx)
			close(events)
		}()
		presenterErr = presenter.Run(presenterEvents)
		ctl.Cancel()
		wg.Wait()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			presenterErr = presenter.Run(presenterEvents)
		}()
		report, runErr = ctl.Run(ctx)
		close(events)
		wg.Wait()
	}
	if presenterErr != nil {
		cfg.Logger.Warn("presenter", "error", presenterErr)
	}

	if !opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}
	return report, runErr
}

// setupLogging builds the process logger: text on stderr at a level picked
// by -v/-q, fanned out to a JSON file when --log is set.
func setupLogging(opts *options) (*slog.Logger, func(), error) {
	level := slog.LevelWarn
	switch {
	case opts.verbose:
		level = slog.LevelDebug
	case opts.quiet:
		level = slog.LevelError
	case opts.tui:
		// The full-screen UI shows failures itself.
		level = slog.LevelError
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	closeFn := func() {}

	if opts.logFile != "" {
		lf, err := os.Create(opts.logFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeFn = func() { _ = lf.Close() }
		handler = ui.NewMultiHandler(handler, slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(handler), closeFn, nil
}

// teeEvents records every event as a structured log entry before handing
// it on to the presenter.
func teeEvents(ctx context.Context, in <-chan event.Event, logger *slog.Logger) <-chan event.Event {
	out := make(chan event.Event, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			logEvent(ctx, logger, ev)
			out <- ev
		}
	}()
	return out
}

func logEvent(ctx context.Context, logger *slog.Logger, ev event.Event) {
	// Debug keeps events off stderr unless -v is set.
	logger.Log(ctx, slog.LevelDebug, "xcp.event", "event", ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
