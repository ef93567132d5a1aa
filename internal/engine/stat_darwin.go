//go:build darwin

package engine

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func accessTime(st *syscall.Stat_t) time.Time { return time.Unix(st.Atimespec.Unix()) }

//nolint:gosec // G115: dev_t is a non-negative int32 on darwin
func deviceOf(st *syscall.Stat_t) uint64 { return uint64(st.Dev) }

// setTimes stamps atime and mtime by path; darwin has no AT_EMPTY_PATH.
func setTimes(f *os.File, atime, mtime time.Time) error {
	ts := []unix.Timespec{timespec(atime), timespec(mtime)}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, f.Name(), ts, 0); err != nil {
		return fmt.Errorf("utimensat: %w", err)
	}
	return nil
}
