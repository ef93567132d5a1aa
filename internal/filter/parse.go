package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile adds the rules in path to the chain, in file order.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	if err := c.load(f); err != nil {
		return fmt.Errorf("filter file %s: %w", path, err)
	}
	return nil
}

// load reads one rule per line:
//
//	- pattern   exclude
//	+ pattern   include
//	!pattern    include (gitignore negation)
//	pattern     exclude
//
// Blank lines and lines starting with # are ignored.
func (c *Chain) load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		pattern, include, ok := parseRule(scanner.Text())
		if !ok {
			continue
		}
		if err := c.add(pattern, include); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	return scanner.Err()
}

func parseRule(line string) (pattern string, include, ok bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "", strings.HasPrefix(line, "#"):
		return "", false, false
	case strings.HasPrefix(line, "+ "):
		return strings.TrimSpace(line[2:]), true, true
	case strings.HasPrefix(line, "- "):
		return strings.TrimSpace(line[2:]), false, true
	case strings.HasPrefix(line, "!"):
		return strings.TrimSpace(line[1:]), true, true
	default:
		return line, false, true
	}
}
