package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/bamsammich/xcp/internal/stats"
)

var rateAbbrs = []string{"B/s", "KiB/s", "MiB/s", "GiB/s", "TiB/s", "PiB/s"}

// FormatRate formats a bytes-per-second rate with binary units.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	if bytesPerSec < 1024 {
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	}
	return units.CustomSize("%.4g %s", bytesPerSec, 1024.0, rateAbbrs)
}

// FormatETA formats a duration as a human-readable ETA string.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// FormatCount groups the digits of n in thousands: 14302 -> "14,302".
func FormatCount(n int64) string {
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	if n < 0 {
		b.WriteByte('-')
		digits = digits[1:]
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

// ProgressBar renders a bar of width cells, ▪ filled and □ empty.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(min(max(pct, 0), 1) * float64(width))
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}

// WorkerIndicator shows busy workers out of total as ▪ and □ cells.
func WorkerIndicator(busy, total int) string {
	busy = min(max(busy, 0), total)
	return strings.Repeat("▪", busy) + strings.Repeat("□", total-busy)
}

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
