package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// copyJob is one source and the path its copy lands at.
type copyJob struct {
	src string
	dst string
}

var errTargetNotDir = errors.New("target is not a directory")

// resolveTargets applies cp's rules for where each source goes. With one
// source and an existing destination directory the source is copied into
// it, unless noTargetDir is set. With several sources the destination must
// be an existing directory.
func resolveTargets(sources []string, dst string, noTargetDir bool) ([]copyJob, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources given")
	}

	info, err := os.Stat(dst)
	dstIsDir := err == nil && info.IsDir()

	if len(sources) > 1 {
		if noTargetDir {
			return nil, fmt.Errorf("extra operand %q with --no-target-directory", sources[1])
		}
		if !dstIsDir {
			return nil, fmt.Errorf("%s: %w", dst, errTargetNotDir)
		}
	}

	jobs := make([]copyJob, 0, len(sources))
	for _, src := range sources {
		target := dst
		if dstIsDir && !noTargetDir {
			target = filepath.Join(dst, filepath.Base(filepath.Clean(src)))
		}
		jobs = append(jobs, copyJob{src: src, dst: target})
	}
	return jobs, nil
}
