package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// compiledPattern wraps a gitignore-syntax pattern. The matching rules are
// the ones rsync users expect: a trailing / restricts the pattern to
// directories, a leading / or any inner / anchors it at the copy root, and
// ** spans directories.
type compiledPattern struct {
	pattern  gitignore.Pattern
	original string
}

func compilePattern(pattern string) (*compiledPattern, error) {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("empty pattern %q", pattern)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "**" {
			continue
		}
		if _, err := filepath.Match(seg, ""); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return &compiledPattern{
		pattern:  gitignore.ParsePattern(pattern, nil),
		original: pattern,
	}, nil
}

// match tests whether a slash-separated relative path matches.
func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	return cp.pattern.Match(splitPath(relPath), isDir) != gitignore.NoMatch
}

func splitPath(relPath string) []string {
	return strings.Split(strings.Trim(filepath.ToSlash(relPath), "/"), "/")
}

func (cp *compiledPattern) String() string { return cp.original }
