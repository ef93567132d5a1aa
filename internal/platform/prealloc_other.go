//go:build !linux

package platform

import "os"

// reserve is a no-op without fallocate.
func reserve(*os.File, int64) error { return nil }
