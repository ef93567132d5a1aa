//go:build linux

package engine

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func accessTime(st *syscall.Stat_t) time.Time { return time.Unix(st.Atim.Unix()) }

func deviceOf(st *syscall.Stat_t) uint64 { return st.Dev }

// setTimes stamps atime and mtime through the descriptor. Kernels without
// AT_EMPTY_PATH support for utimensat get the path form.
//
//nolint:gosec // G115: fd conversion is safe
func setTimes(f *os.File, atime, mtime time.Time) error {
	ts := []unix.Timespec{timespec(atime), timespec(mtime)}
	err := unix.UtimesNanoAt(int(f.Fd()), "", ts, unix.AT_EMPTY_PATH)
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT) {
		err = unix.UtimesNanoAt(unix.AT_FDCWD, f.Name(), ts, 0)
	}
	if err != nil {
		return fmt.Errorf("utimensat: %w", err)
	}
	return nil
}
