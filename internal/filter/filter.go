package filter

import "github.com/go-git/go-git/v5/plumbing/format/gitignore"

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool // true=include, false=exclude
}

// Chain holds an ordered list of filter rules plus size filters and an
// optional gitignore matcher.
type Chain struct {
	ignore  gitignore.Matcher
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: include})
	return nil
}

// SetMinSize sets the minimum file size filter.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize sets the maximum file size filter.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain filters nothing.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0 && c.ignore == nil
}

// Match returns true if the path should be INCLUDED (not filtered out).
// relPath is slash-separated and relative to the copy root; size is ignored
// for directories.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	// First match wins.
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}

	if c.ignore != nil && c.ignore.Match(splitPath(relPath), isDir) {
		return false
	}
	return true
}
