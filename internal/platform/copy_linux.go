//go:build linux

package platform

import (
	"context"

	"golang.org/x/sys/unix"
)

// maxRangeChunk caps a single copy_file_range call so cancellation and the
// bandwidth limiter get a look in between calls.
const maxRangeChunk = 1 << 30 // 1 GiB

// RangeCopy lets the kernel move the data. Unthrottled copies first try a
// FICLONE reflink; otherwise each data range goes through copy_file_range,
// so holes are never transferred. Cross-device or unsupported errors on the
// first call make the strategy not applicable.
//
//nolint:gosec // G115: fd conversion is safe for file descriptors
func RangeCopy(ctx context.Context, j *Job) (CopyResult, error) {
	srcFd, dstFd := int(j.Src.Fd()), int(j.Dst.Fd())

	if j.limiter == nil {
		if err := unix.IoctlFileClone(dstFd, srcFd); err == nil {
			return CopyResult{Bytes: j.Size, DataBytes: j.Size, Method: Reflink}, nil
		}
	}

	var (
		data  int64
		first = true
	)
	for r, err := range j.Sparse.Ranges() {
		if err != nil {
			return CopyResult{DataBytes: data, Method: CopyFileRange}, &OpError{Op: "lseek", Method: CopyFileRange, Err: err}
		}

		roff, woff := r.Offset, r.Offset
		for roff < r.End() {
			if err := ctx.Err(); err != nil {
				return CopyResult{DataBytes: data, Method: CopyFileRange}, err
			}
			chunk := min(r.End()-roff, maxRangeChunk)
			if j.limiter != nil {
				chunk = min(chunk, int64(j.limiter.Burst()))
			}
			if err := j.throttle(ctx, chunk); err != nil {
				return CopyResult{DataBytes: data, Method: CopyFileRange}, err
			}

			n, err := retryInterrupted(func() (int, error) {
				return unix.CopyFileRange(srcFd, &roff, dstFd, &woff, int(chunk), 0)
			})
			if err != nil {
				if first && isFallbackErr(err) {
					return CopyResult{}, notApplicable(CopyFileRange, err)
				}
				return CopyResult{DataBytes: data, Method: CopyFileRange}, &OpError{Op: "copy_file_range", Method: CopyFileRange, Err: err}
			}
			first = false
			if n == 0 {
				// Source shrank underneath us.
				return CopyResult{Bytes: roff, DataBytes: data, Method: CopyFileRange}, nil
			}
			data += int64(n)
		}
	}

	return CopyResult{Bytes: j.Size, DataBytes: data, Method: CopyFileRange}, nil
}
