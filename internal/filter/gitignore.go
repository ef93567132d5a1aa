package filter

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// AddGitignore loads .git/info/exclude and every .gitignore below root.
// Paths they ignore are excluded unless an explicit rule matched first.
func (c *Chain) AddGitignore(root string) error {
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return fmt.Errorf("read gitignore patterns under %s: %w", root, err)
	}
	c.ignore = gitignore.NewMatcher(patterns)
	return nil
}
