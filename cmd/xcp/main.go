package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/xcp/internal/config"
	"github.com/bamsammich/xcp/internal/engine"
	"github.com/bamsammich/xcp/internal/filter"
)

var version = "dev"

const (
	exitOK        = 0
	exitPartial   = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// options holds every flag of the root command.
type options struct {
	rules       []filterRule
	overwrite   engine.OverwritePolicy
	blockSize   string
	bwLimit     string
	filterFile  string
	minSize     string
	maxSize     string
	logFile     string
	workers     int
	recursive   bool
	verify      bool
	gitignore   bool
	fsync       bool
	dereference bool
	noTimes     bool
	noTargetDir bool
	quiet       bool
	verbose     bool
	noProgress  bool
	forceFeed   bool
	forceRate   bool
	tui         bool
	showVersion bool
}

// filterRule is one --exclude or --include, kept in command-line order.
type filterRule struct {
	pattern string
	include bool
}

// filterFlag is a pflag.Value appending to the shared ordered rule list.
type filterFlag struct {
	rules   *[]filterRule
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	*f.rules = append(*f.rules, filterRule{pattern: val, include: f.include})
	return nil
}

// exitError carries a process exit code out of cobra's RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func run(args []string) int {
	cmd := newRootCmd(&options{overwrite: engine.OverwriteFail})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "xcp: %v\n", err)
		return exitUsage
	}
	return exitOK
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xcp [flags] <source>... <destination>",
		Short: "Fast, sparse-aware, parallel file and tree copy",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "xcp %s\n", version)
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "xcp: ignoring config %s: %v\n", config.Path(), err)
			}
			applyConfigDefaults(cmd, cfg.Defaults, opts)
			return copyAll(cmd.Context(), opts, args[:len(args)-1], args[len(args)-1])
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.BoolVarP(&opts.recursive, "recursive", "r", false, "copy directories recursively")
	f.IntVarP(&opts.workers, "workers", "w", 0, "number of copy workers (default: min(NumCPU, 8))")
	f.StringVar(&opts.blockSize, "block-size", "", "buffer size for read/write copies (e.g. 1M)")
	f.Var(&opts.overwrite, "overwrite", "existing destination files: fail, skip, replace or update")
	f.StringVar(&opts.bwLimit, "bwlimit", "", "bandwidth limit per second (e.g. 100M, 1G)")
	f.BoolVar(&opts.verify, "verify", false, "verify copied files with BLAKE3 after the copy")
	f.BoolVar(&opts.gitignore, "gitignore", false, "skip files ignored by .gitignore under the source")
	f.BoolVar(&opts.fsync, "fsync", false, "sync every file to disk before it is renamed into place")
	f.BoolVarP(&opts.dereference, "dereference", "L", false, "follow symlinks in the source")
	f.BoolVar(&opts.noTimes, "no-times", false, "don't preserve modification times")
	f.BoolVarP(&opts.noTargetDir, "no-target-directory", "T", false, "treat the destination as a normal file")
	f.Var(&filterFlag{rules: &opts.rules}, "exclude", "exclude files matching PATTERN (repeatable)")
	f.Var(&filterFlag{rules: &opts.rules, include: true}, "include", "include files matching PATTERN (repeatable)")
	f.StringVar(&opts.filterFile, "filter", "", "read filter rules from FILE")
	f.StringVar(&opts.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 100K)")
	f.StringVar(&opts.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "list every file and log debug detail")
	f.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress display")
	f.BoolVar(&opts.forceFeed, "feed", false, "force feed mode (one line per file)")
	f.BoolVar(&opts.forceRate, "rate", false, "force rate mode (sparkline and throughput)")
	f.BoolVar(&opts.tui, "tui", false, "full-screen terminal UI")
	f.StringVar(&opts.logFile, "log", "", "write a structured JSON log to FILE")
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")
	rootCmd.MarkFlagsMutuallyExclusive("feed", "rate")

	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

// applyConfigDefaults fills flags not set on the command line from the
// config file.
func applyConfigDefaults(cmd *cobra.Command, d config.DefaultsConfig, opts *options) {
	changed := cmd.Flags().Changed
	if !changed("workers") && d.Workers != nil {
		opts.workers = *d.Workers
	}
	if !changed("block-size") && d.BlockSize != nil {
		opts.blockSize = *d.BlockSize
	}
	if !changed("overwrite") && d.Overwrite != nil {
		opts.overwrite = *d.Overwrite
	}
	if !changed("bwlimit") && d.BWLimit != nil {
		opts.bwLimit = *d.BWLimit
	}
	if !changed("verify") && d.Verify != nil {
		opts.verify = *d.Verify
	}
	if !changed("gitignore") && d.Gitignore != nil {
		opts.gitignore = *d.Gitignore
	}
	if !changed("fsync") && d.Fsync != nil {
		opts.fsync = *d.Fsync
	}
	if !changed("dereference") && d.Dereference != nil {
		opts.dereference = *d.Dereference
	}
	if !changed("no-progress") && d.NoProgress != nil {
		opts.noProgress = *d.NoProgress
	}
}

// buildFilter assembles the filter for one source root. It returns nil
// when nothing would be filtered.
func buildFilter(opts *options, srcRoot string) (*filter.Chain, error) {
	chain := filter.NewChain()
	for _, r := range opts.rules {
		var err error
		if r.include {
			err = chain.AddInclude(r.pattern)
		} else {
			err = chain.AddExclude(r.pattern)
		}
		if err != nil {
			return nil, err
		}
	}
	if opts.filterFile != "" {
		if err := chain.LoadFile(opts.filterFile); err != nil {
			return nil, fmt.Errorf("load filter file: %w", err)
		}
	}
	if opts.minSize != "" {
		n, err := filter.ParseSize(opts.minSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --min-size: %w", err)
		}
		chain.SetMinSize(n)
	}
	if opts.maxSize != "" {
		n, err := filter.ParseSize(opts.maxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
		chain.SetMaxSize(n)
	}
	if opts.gitignore {
		if info, err := os.Stat(srcRoot); err == nil && info.IsDir() {
			if err := chain.AddGitignore(srcRoot); err != nil {
				return nil, err
			}
		}
	}
	if chain.Empty() {
		return nil, nil
	}
	return chain, nil
}
