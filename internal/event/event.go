package event

import (
	"log/slog"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	FileStarted
	FileCompleted
	FileFailed
	FileSkipped
	DirCreated
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	ScanStarted:   "ScanStarted",
	ScanComplete:  "ScanComplete",
	FileStarted:   "FileStarted",
	FileCompleted: "FileCompleted",
	FileFailed:    "FileFailed",
	FileSkipped:   "FileSkipped",
	DirCreated:    "DirCreated",
	VerifyStarted: "VerifyStarted",
	VerifyOK:      "VerifyOK",
	VerifyFailed:  "VerifyFailed",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Settles reports whether t ends a file's task.
func (t Type) Settles() bool {
	return t == FileCompleted || t == FileFailed || t == FileSkipped
}

// Event represents a single progress event from the engine.
type Event struct {
	Timestamp time.Time
	Error     error
	Path      string // relative path
	Method    string // copy strategy (FileCompleted)
	Reason    string // error kind (FileFailed, FileSkipped)
	Type      Type
	Size      int64 // file size
	Total     int64 // total files (ScanComplete)
	TotalSize int64 // total bytes (ScanComplete)
	WorkerID  int
}

// LogValue renders the non-empty fields as a group.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", e.Type.String())}
	if e.Path != "" {
		attrs = append(attrs, slog.String("path", e.Path))
	}
	if e.Size != 0 {
		attrs = append(attrs, slog.Int64("size", e.Size))
	}
	if e.Type == FileStarted || e.Type.Settles() {
		attrs = append(attrs, slog.Int("worker", e.WorkerID))
	}
	if e.Method != "" {
		attrs = append(attrs, slog.String("method", e.Method))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	if e.Type == ScanComplete {
		attrs = append(attrs, slog.Int64("total_files", e.Total), slog.Int64("total_bytes", e.TotalSize))
	}
	return slog.GroupValue(attrs...)
}
