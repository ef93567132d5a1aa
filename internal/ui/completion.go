package ui

import (
	"fmt"

	"github.com/bamsammich/xcp/internal/stats"
)

// CompletionSummary builds the final summary line from a snapshot.
// Format: done ✓  files 48,917  size 2.1 GiB  avg 641 MiB/s  time 3m 17s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesDone) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.FilesFailed > 0 || snap.FilesVerifyFailed > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  files %s  size %s  avg %s  time %s",
		icon,
		FormatCount(snap.FilesCopied),
		FormatBytes(snap.BytesDone),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)
	if snap.FilesSkipped > 0 {
		base += fmt.Sprintf("  skipped %s", FormatCount(snap.FilesSkipped))
	}
	if snap.FilesVerified > 0 || snap.FilesVerifyFailed > 0 {
		base += fmt.Sprintf("  verified %s", FormatCount(snap.FilesVerified))
	}
	return base + fmt.Sprintf("  errors %d", snap.FilesFailed+snap.FilesVerifyFailed)
}
