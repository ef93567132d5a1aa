package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/xcp/internal/platform"
)

// ErrorKind classifies why a task was skipped or failed. A strategy that
// does not apply and an interrupted syscall are handled inside the
// selector and have no kind of their own.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	SpecialFile
	IOFailure
	SourceVanished
	PermissionDenied
	DestinationExists
	UpToDate
	WalkError
	FatalSetupError
	Cancelled
	VerifyMismatch
)

var kindNames = [...]string{
	KindNone:          "none",
	SpecialFile:       "special_file",
	IOFailure:         "io_failure",
	SourceVanished:    "source_vanished",
	PermissionDenied:  "permission_denied",
	DestinationExists: "destination_exists",
	UpToDate:          "up_to_date",
	WalkError:         "walk_error",
	FatalSetupError:   "setup_error",
	Cancelled:         "cancelled",
	VerifyMismatch:    "verify_mismatch",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var (
	// ErrNotRecursive is returned when the source is a directory and
	// recursion was not requested.
	ErrNotRecursive = errors.New("source is a directory (use -r)")
	// ErrDestInsideSource refuses copies that would recurse into their own output.
	ErrDestInsideSource = errors.New("destination is inside source")
	// ErrSameFile refuses copying a path onto itself.
	ErrSameFile = errors.New("source and destination are the same file")
	// ErrControllerUsed is returned by a second call to Controller.Run.
	ErrControllerUsed = errors.New("controller already ran")
)

// SetupError is a fatal error raised before any copying starts.
type SetupError struct {
	Err  error
	Op   string
	Path string
}

func (e *SetupError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Classify maps an error from the copy path onto an ErrorKind. A missing
// path is read as the source having vanished; callers classifying
// destination-side errors use classifyDest.
func Classify(err error) ErrorKind {
	var setupErr *SetupError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Cancelled
	case errors.As(err, &setupErr):
		return FatalSetupError
	case errors.Is(err, platform.ErrNotApplicable), errors.Is(err, unix.EINTR):
		// The selector ran out of strategies or retries.
		return IOFailure
	case errors.Is(err, fs.ErrNotExist):
		return SourceVanished
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	case errors.Is(err, fs.ErrExist):
		return DestinationExists
	default:
		return IOFailure
	}
}

func classifyDest(err error) ErrorKind {
	if errors.Is(err, fs.ErrNotExist) {
		return IOFailure
	}
	return Classify(err)
}
