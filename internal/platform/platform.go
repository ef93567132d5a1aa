package platform

import (
	"errors"
	"fmt"
)

// CopyMethod identifies which strategy produced a copy.
type CopyMethod int

const (
	ReadWrite       CopyMethod = iota // sequential pread/pwrite of every byte
	SparseReadWrite                   // pread/pwrite of data ranges only
	CopyFileRange                     // Linux copy_file_range(2) per data range
	Reflink                           // FICLONE ioctl, shares extents
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case SparseReadWrite:
		return "sparse_read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Reflink:
		return "reflink"
	default:
		return "unknown"
	}
}

// CopyResult reports the outcome of a copy operation.
type CopyResult struct {
	// Bytes is the logical length covered, holes included. It is smaller
	// than the requested size only when the source shrank mid-copy.
	Bytes int64
	// DataBytes counts the bytes that were actually moved.
	DataBytes int64
	Method    CopyMethod
}

// ErrNotApplicable is returned (wrapped) by a strategy that cannot serve the
// current file pair. The selector moves on to the next strategy.
var ErrNotApplicable = errors.New("copy strategy not applicable")

// OpError records the syscall and strategy that failed.
type OpError struct {
	Err    error
	Op     string
	Method CopyMethod
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Method, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func notApplicable(m CopyMethod, reason error) error {
	return fmt.Errorf("%s: %w: %w", m, ErrNotApplicable, reason)
}
