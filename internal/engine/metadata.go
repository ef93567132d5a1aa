package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// unixMode converts an os.FileMode into the permission bits chmod expects,
// including setuid, setgid and sticky.
func unixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		mode |= unix.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= unix.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= unix.S_ISVTX
	}
	return mode
}

// metadataOpts says which attributes to carry over besides the mode.
type metadataOpts struct {
	times bool
	owner bool
}

// applyFileMetadata sets owner, mode and times on an open destination.
// Ownership goes first since chown clears setuid/setgid.
//
//nolint:gosec // G115: fd and id conversions are safe
func applyFileMetadata(f *os.File, task CopyTask, opts metadataOpts) error {
	rawFd := int(f.Fd())
	if opts.owner {
		if err := unix.Fchown(rawFd, int(task.UID), int(task.GID)); err != nil && !errors.Is(err, unix.EPERM) {
			return fmt.Errorf("fchown: %w", err)
		}
	}
	if err := unix.Fchmod(rawFd, unixMode(task.Mode)); err != nil {
		return fmt.Errorf("fchmod: %w", err)
	}
	if opts.times {
		if err := setTimes(f, task.AccTime, task.ModTime); err != nil {
			return err
		}
	}
	return nil
}

// applyPathMetadata does the same for a directory or symlink by path.
// Symlinks never get a mode; their times are set without following.
//
//nolint:gosec // G115: id conversions are safe
func applyPathMetadata(path string, task CopyTask, opts metadataOpts) error {
	symlink := task.Kind == Symlink
	if opts.owner {
		if err := os.Lchown(path, int(task.UID), int(task.GID)); err != nil && !errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("lchown %s: %w", path, err)
		}
	}
	if !symlink {
		if err := unix.Chmod(path, unixMode(task.Mode)); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	if opts.times {
		flags := 0
		if symlink {
			flags = unix.AT_SYMLINK_NOFOLLOW
		}
		times := []unix.Timespec{timespec(task.AccTime), timespec(task.ModTime)}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, flags); err != nil {
			return fmt.Errorf("utimensat %s: %w", path, err)
		}
	}
	return nil
}

func timespec(t time.Time) unix.Timespec {
	return unix.NsecToTimespec(t.UnixNano())
}
