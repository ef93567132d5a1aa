package platform

import (
	"errors"
	"iter"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// DataRange is a region of a file that holds data. Everything between two
// ranges is a hole.
type DataRange struct {
	Offset int64
	Length int64
}

// End returns the offset one past the last byte of the range.
func (r DataRange) End() int64 { return r.Offset + r.Length }

// SparseMap discovers the data ranges of an open file with SEEK_DATA and
// SEEK_HOLE. Ranges are produced lazily so huge files are never mapped up
// front.
//
// Seeking moves the descriptor's file offset; callers must read through
// positional I/O (pread, copy_file_range with explicit offsets).
type SparseMap struct {
	fd        int
	size      int64
	supported bool
}

// NewSparseMap probes f for hole support. When the filesystem rejects
// SEEK_DATA the map degrades to a single range covering the whole file.
func NewSparseMap(f *os.File, size int64) *SparseMap {
	m := &SparseMap{
		fd:        int(f.Fd()), //nolint:gosec // G115: fd conversion is safe for file descriptors
		size:      size,
		supported: true,
	}
	if size == 0 {
		return m
	}
	if _, err := seekData(m.fd, 0); err != nil && isSeekUnsupported(err) {
		m.supported = false
	}
	return m
}

// Supported reports whether the filesystem answered SEEK_DATA.
func (m *SparseMap) Supported() bool { return m.supported }

// Size is the file length the map was built for.
func (m *SparseMap) Size() int64 { return m.size }

// Ranges yields data ranges in ascending, non-overlapping order, all within
// [0, size). A file made entirely of holes yields nothing. Iteration stops
// at the first seek error, which is yielded with a zero range.
func (m *SparseMap) Ranges() iter.Seq2[DataRange, error] {
	return func(yield func(DataRange, error) bool) {
		if m.size == 0 {
			return
		}
		if !m.supported {
			yield(DataRange{Offset: 0, Length: m.size}, nil)
			return
		}

		offset := int64(0)
		for offset < m.size {
			start, err := seekData(m.fd, offset)
			if err != nil {
				if errors.Is(err, unix.ENXIO) {
					// Rest of the file is a hole.
					return
				}
				yield(DataRange{}, err)
				return
			}
			if start >= m.size {
				return
			}

			end, err := seekHole(m.fd, start)
			if err != nil {
				if !errors.Is(err, unix.ENXIO) {
					yield(DataRange{}, err)
					return
				}
				end = m.size
			}
			end = min(end, m.size)

			if !yield(DataRange{Offset: start, Length: end - start}, nil) {
				return
			}
			offset = end
		}
	}
}

// ProbablySparse is a cheap pre-check: a file whose allocated blocks cover
// less than its length must contain holes.
func ProbablySparse(fi os.FileInfo) bool {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return st.Blocks*512 < fi.Size()
}

func seekData(fd int, offset int64) (int64, error) {
	return retryInterrupted(func() (int64, error) {
		return unix.Seek(fd, offset, unix.SEEK_DATA)
	})
}

func seekHole(fd int, offset int64) (int64, error) {
	return retryInterrupted(func() (int64, error) {
		return unix.Seek(fd, offset, unix.SEEK_HOLE)
	})
}

func isSeekUnsupported(err error) bool {
	return errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.ENOSYS)
}
