package filter

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"
)

// ParseSize parses a human-readable size string into bytes.
// Accepts 100, 100B, 100K, 1.5G, 1GiB (case-insensitive). Suffixes are
// powers of 1024, matching rsync.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return n, nil
}
