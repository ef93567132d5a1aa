package platform

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// SparseCopy moves each data range through the userspace buffer and leaves
// holes untouched, so the pre-extended destination keeps them as holes. It
// is not applicable when the filesystem cannot report holes.
func SparseCopy(ctx context.Context, j *Job) (CopyResult, error) {
	if !j.Sparse.Supported() {
		return CopyResult{}, notApplicable(SparseReadWrite, errors.ErrUnsupported)
	}

	var data int64
	for r, err := range j.Sparse.Ranges() {
		if err != nil {
			return CopyResult{DataBytes: data, Method: SparseReadWrite}, &OpError{Op: "lseek", Method: SparseReadWrite, Err: err}
		}
		n, eof, err := j.copyRange(ctx, r.Offset, r.Length)
		data += n
		if err != nil {
			return CopyResult{DataBytes: data, Method: SparseReadWrite}, wrapIOErr(err, SparseReadWrite)
		}
		if eof {
			return CopyResult{Bytes: r.Offset + n, DataBytes: data, Method: SparseReadWrite}, nil
		}
	}
	return CopyResult{Bytes: j.Size, DataBytes: data, Method: SparseReadWrite}, nil
}

// NaiveCopy copies every byte sequentially. It always applies.
func NaiveCopy(ctx context.Context, j *Job) (CopyResult, error) {
	if err := reserve(j.Dst, j.Size); err != nil {
		return CopyResult{Method: ReadWrite}, wrapIOErr(err, ReadWrite)
	}

	n, eof, err := j.copyRange(ctx, 0, j.Size)
	if err != nil {
		return CopyResult{DataBytes: n, Method: ReadWrite}, wrapIOErr(err, ReadWrite)
	}
	if eof {
		return CopyResult{Bytes: n, DataBytes: n, Method: ReadWrite}, nil
	}
	return CopyResult{Bytes: j.Size, DataBytes: n, Method: ReadWrite}, nil
}

// copyRange copies [offset, offset+length) with pread/pwrite. eof is true
// when the source ended before the range did.
//
//nolint:gosec // G115: fd conversion is safe for file descriptors
func (j *Job) copyRange(ctx context.Context, offset, length int64) (done int64, eof bool, err error) {
	srcFd, dstFd := int(j.Src.Fd()), int(j.Dst.Fd())
	bufLen := int64(len(j.buf))

	for done < length {
		if err := ctx.Err(); err != nil {
			return done, false, err
		}
		toRead := min(length-done, bufLen)
		if err := j.throttle(ctx, toRead); err != nil {
			return done, false, err
		}

		pos := offset + done
		n, err := retryInterrupted(func() (int, error) {
			return unix.Pread(srcFd, j.buf[:toRead], pos)
		})
		if err != nil {
			return done, false, &OpError{Op: "pread", Err: err}
		}
		if n == 0 {
			return done, true, nil
		}

		written := 0
		for written < n {
			w, err := retryInterrupted(func() (int, error) {
				return unix.Pwrite(dstFd, j.buf[written:n], pos+int64(written))
			})
			if err != nil {
				return done + int64(written), false, &OpError{Op: "pwrite", Err: err}
			}
			written += w
		}
		done += int64(n)
	}
	return done, false, nil
}

// wrapIOErr stamps the strategy on an OpError coming out of copyRange and
// passes context errors through untouched.
func wrapIOErr(err error, m CopyMethod) error {
	var opErr *OpError
	if errors.As(err, &opErr) {
		opErr.Method = m
	}
	return err
}
