package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	path  string
	isDir bool
	size  int64
	keep  bool
}

func TestChainMatch(t *testing.T) {
	tests := []struct {
		name   string
		rules  []ruleDef
		probes []probe
	}{
		{
			name: "empty keeps everything",
			probes: []probe{
				{path: "a/b.txt", size: 1, keep: true},
				{path: "a", isDir: true, keep: true},
			},
		},
		{
			name:  "unanchored glob matches at any depth",
			rules: []ruleDef{{"*.o", false}},
			probes: []probe{
				{path: "main.o"},
				{path: "obj/x86/main.o"},
				{path: "main.o.keep", keep: true},
				{path: "main.c", keep: true},
			},
		},
		{
			name:  "first matching rule wins",
			rules: []ruleDef{{"core.dump", true}, {"*.dump", false}},
			probes: []probe{
				{path: "core.dump", keep: true},
				{path: "heap.dump"},
			},
		},
		{
			name:  "late include never fires",
			rules: []ruleDef{{"*.dump", false}, {"core.dump", true}},
			probes: []probe{
				{path: "core.dump"},
			},
		},
		{
			name:  "trailing slash only matches directories",
			rules: []ruleDef{{"cache/", false}},
			probes: []probe{
				{path: "cache", isDir: true},
				{path: "var/cache", isDir: true},
				{path: "cache", keep: true},
			},
		},
		{
			name:  "leading slash anchors at the root",
			rules: []ruleDef{{"/VERSION", false}},
			probes: []probe{
				{path: "VERSION"},
				{path: "vendor/VERSION", keep: true},
			},
		},
		{
			name:  "inner slash anchors too",
			rules: []ruleDef{{"docs/*.md", false}},
			probes: []probe{
				{path: "docs/intro.md"},
				{path: "site/docs/intro.md", keep: true},
			},
		},
		{
			name:  "double star spans directories",
			rules: []ruleDef{{"**/*.rs", true}, {"*", false}},
			probes: []probe{
				{path: "lib.rs", keep: true},
				{path: "src/os/unix.rs", keep: true},
				{path: "Cargo.toml"},
			},
		},
		{
			name:  "question mark and classes",
			rules: []ruleDef{{"part?.bin", false}, {"disk[0-9].img", false}},
			probes: []probe{
				{path: "part1.bin"},
				{path: "part12.bin", keep: true},
				{path: "disk3.img"},
				{path: "diskA.img", keep: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChain()
			for _, r := range tt.rules {
				if r.include {
					require.NoError(t, c.AddInclude(r.pattern))
				} else {
					require.NoError(t, c.AddExclude(r.pattern))
				}
			}
			assert.Equal(t, len(tt.rules) == 0, c.Empty())
			for _, p := range tt.probes {
				assert.Equal(t, p.keep, c.Match(p.path, p.isDir, p.size), "%s (dir=%v)", p.path, p.isDir)
			}
		})
	}
}

type ruleDef struct {
	pattern string
	include bool
}

func TestChainSizeBounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max int64
		probes   []probe
	}{
		{
			name: "both bounds",
			min:  4 << 10,
			max:  1 << 20,
			probes: []probe{
				{path: "small", size: 100},
				{path: "page", size: 4 << 10, keep: true},
				{path: "big", size: 2 << 20},
				{path: "dir", isDir: true, keep: true},
			},
		},
		{
			name: "min only",
			min:  1,
			probes: []probe{
				{path: "empty", size: 0},
				{path: "byte", size: 1, keep: true},
			},
		},
		{
			name: "max only",
			max:  10,
			probes: []probe{
				{path: "ok", size: 10, keep: true},
				{path: "over", size: 11},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChain()
			c.SetMinSize(tt.min)
			c.SetMaxSize(tt.max)
			assert.False(t, c.Empty())
			for _, p := range tt.probes {
				assert.Equal(t, p.keep, c.Match(p.path, p.isDir, p.size), p.path)
			}
		})
	}
}

func TestSizeBoundsBeforeRules(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("*.iso"))
	c.SetMaxSize(100)
	assert.False(t, c.Match("huge.iso", false, 1<<30))
}

func TestCompilePattern(t *testing.T) {
	for _, bad := range []string{"bad[", "/", "//", "a/[/b"} {
		_, err := compilePattern(bad)
		assert.Error(t, err, bad)
	}

	cp, err := compilePattern("**/build/")
	require.NoError(t, err)
	assert.Equal(t, "**/build/", cp.String())
}
