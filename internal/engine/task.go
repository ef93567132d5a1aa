package engine

import (
	"os"
	"time"

	"github.com/bamsammich/xcp/internal/platform"
)

// EntryKind identifies the kind of filesystem entry a task copies.
type EntryKind int

const (
	File EntryKind = iota
	Directory
	Symlink
	Other // fifos, sockets and device nodes; not copied
)

func (k EntryKind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "other"
	}
}

// CopyTask is one unit of work: a source entry and the destination path it
// maps to. Size, mode, owner and times are captured at walk time.
type CopyTask struct {
	ModTime    time.Time
	AccTime    time.Time
	SrcPath    string
	DstPath    string
	RelPath    string // slash-separated, relative to the source root
	LinkTarget string
	Size       int64
	Mode       os.FileMode
	UID        uint32
	GID        uint32
	Kind       EntryKind
}

// Manifest is the complete result of a walk. Tasks are in dispatch order:
// depth-first, lexical within each directory.
type Manifest struct {
	Tasks []CopyTask
	// Dirs lists the destination directories the walk created or merged
	// into, parents before children. Their final mode and times are
	// applied after copying.
	Dirs     []CopyTask
	Failures []Failure
	// TotalFiles counts non-directory tasks.
	TotalFiles  int64
	TotalBytes  int64
	DirsCreated int64
}

// Result is the terminal state of a task.
type Result int

const (
	Copied Result = iota
	Skipped
	Failed
)

func (r Result) String() string {
	switch r {
	case Copied:
		return "copied"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// CopyOutcome reports what happened to a single task.
type CopyOutcome struct {
	Err    error
	Task   CopyTask
	Result Result
	Kind   ErrorKind // why the task was skipped or failed
	Bytes  int64     // logical bytes written, holes included
	Method platform.CopyMethod
}

// Failure is one entry in the run report's failure list.
type Failure struct {
	Err  error
	Path string
	Kind ErrorKind
}
