//go:build !linux

package platform

import (
	"context"
	"errors"
)

// RangeCopy needs copy_file_range(2), which only Linux has.
func RangeCopy(_ context.Context, _ *Job) (CopyResult, error) {
	return CopyResult{}, notApplicable(CopyFileRange, errors.ErrUnsupported)
}
