package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	units "github.com/docker/go-units"
)

const ringSize = 60

var binaryAbbrs = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// Progress is the read-only view of a run's counters. Reads are lock-free
// and may be taken from any goroutine while the run is in flight.
type Progress interface {
	BytesDone() int64
	FilesDone() int64
	TotalBytes() int64
	TotalFiles() int64
}

// ReadTicker is what presenters need: counters plus the rolling-rate ring.
type ReadTicker interface {
	Progress
	Snapshot() Snapshot
	Tick()
	RollingSpeed(seconds int) float64
	RollingFilesPerSec(seconds int) float64
	SparklineData(n int) []float64
	ETA() time.Duration
}

// Collector tracks copy statistics using lock-free atomic counters. Workers
// only ever add; totals are stored once when the walk completes.
type Collector struct {
	startTime time.Time

	filesScanned      atomic.Int64
	filesDone         atomic.Int64
	filesCopied       atomic.Int64
	filesFailed       atomic.Int64
	filesSkipped      atomic.Int64
	bytesDone         atomic.Int64
	dirsCreated       atomic.Int64
	bytesTotal        atomic.Int64
	filesTotal        atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64

	// Ring buffer, written only by the presenter's Tick().
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per second
	filesPerSec [ringSize]int64 // files delta per second
	ringIdx     int
	ringCount   int // samples written, capped at ringSize
	lastBytes   int64
	lastFiles   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records walk totals (called once when the walk completes).
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned      int64
	FilesDone         int64
	FilesCopied       int64
	FilesFailed       int64
	FilesSkipped      int64
	BytesDone         int64
	DirsCreated       int64
	BytesTotal        int64
	FilesTotal        int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) AddFilesScanned(n int64)      { c.filesScanned.Add(n) }
func (c *Collector) AddFilesDone(n int64)         { c.filesDone.Add(n) }
func (c *Collector) AddFilesCopied(n int64)       { c.filesCopied.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)      { c.filesSkipped.Add(n) }
func (c *Collector) AddBytesDone(n int64)         { c.bytesDone.Add(n) }
func (c *Collector) AddDirsCreated(n int64)       { c.dirsCreated.Add(n) }
func (c *Collector) AddFilesVerified(n int64)     { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

func (c *Collector) BytesDone() int64  { return c.bytesDone.Load() }
func (c *Collector) FilesDone() int64  { return c.filesDone.Load() }
func (c *Collector) TotalBytes() int64 { return c.bytesTotal.Load() }
func (c *Collector) TotalFiles() int64 { return c.filesTotal.Load() }

// Snapshot reads every counter. Counters are read one at a time, so a
// snapshot taken mid-run may mix slightly different instants.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:      c.filesScanned.Load(),
		FilesDone:         c.filesDone.Load(),
		FilesCopied:       c.filesCopied.Load(),
		FilesFailed:       c.filesFailed.Load(),
		FilesSkipped:      c.filesSkipped.Load(),
		BytesDone:         c.bytesDone.Load(),
		DirsCreated:       c.dirsCreated.Load(),
		BytesTotal:        c.bytesTotal.Load(),
		FilesTotal:        c.filesTotal.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesDone.Load()
	currentFiles := c.filesDone.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = currentBytes - c.lastBytes
	c.filesPerSec[c.ringIdx] = currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n bytes/sec samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count == 0 {
		return nil
	}

	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesDone.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"files=%d/%d copied=%d skipped=%d failed=%d bytes=%d/%d dirs=%d",
		s.FilesDone, s.FilesTotal, s.FilesCopied, s.FilesSkipped, s.FilesFailed,
		s.BytesDone, s.BytesTotal, s.DirsCreated,
	)
}

// FormatBytes returns a human-readable byte count in binary units.
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	return units.CustomSize("%.1f %s", float64(b), 1024.0, binaryAbbrs)
}
