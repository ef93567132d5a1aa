package engine

import (
	"fmt"
	"strings"
)

// OverwritePolicy decides what happens when a destination entry already exists.
type OverwritePolicy string

const (
	// OverwriteFail records the file as failed and leaves the destination alone.
	OverwriteFail OverwritePolicy = "fail"
	// OverwriteSkip leaves the destination alone and records a skip.
	OverwriteSkip OverwritePolicy = "skip"
	// OverwriteReplace always replaces the destination.
	OverwriteReplace OverwritePolicy = "replace"
	// OverwriteUpdate replaces the destination only when the sizes differ
	// or the source is newer.
	OverwriteUpdate OverwritePolicy = "update"
)

// ParseOverwritePolicy parses a policy name, case-insensitively. The empty
// string selects OverwriteFail.
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OverwriteFail, nil
	case OverwriteFail, OverwriteSkip, OverwriteReplace, OverwriteUpdate:
		return p, nil
	default:
		return "", fmt.Errorf("invalid overwrite policy %q (want fail, skip, replace or update)", s)
	}
}

func (p OverwritePolicy) String() string { return string(p) }

// Set implements pflag.Value.
func (p *OverwritePolicy) Set(s string) error {
	parsed, err := ParseOverwritePolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Type implements pflag.Value.
func (*OverwritePolicy) Type() string { return "policy" }

// MarshalText implements encoding.TextMarshaler.
func (p OverwritePolicy) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so config files are
// validated as they are decoded.
func (p *OverwritePolicy) UnmarshalText(text []byte) error {
	return p.Set(string(text))
}
