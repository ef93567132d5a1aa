//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// reserve allocates size bytes of backing store for dst up front so a
// full-file copy fails early on a full disk and lands contiguously. The
// file's length is left alone. Filesystems that cannot fallocate are left
// to allocate on write.
//
//nolint:gosec // G115: fd values are small non-negative integers
func reserve(dst *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	_, err := retryInterrupted(func() (int, error) {
		return 0, unix.Fallocate(int(dst.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, size)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EDQUOT), errors.Is(err, unix.EFBIG):
		return &OpError{Op: "fallocate", Err: err}
	default:
		return nil
	}
}
