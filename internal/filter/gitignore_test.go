package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.o\n/build/\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", ".gitignore"), []byte("secret.txt\n"), 0o644))

	c := NewChain()
	require.NoError(t, c.AddGitignore(root))
	assert.False(t, c.Empty())

	assert.False(t, c.Match("main.o", false, 10))
	assert.False(t, c.Match("deep/dir/x.o", false, 10))
	assert.False(t, c.Match("build", true, 0))
	assert.True(t, c.Match("sub/build", true, 0))
	assert.False(t, c.Match("sub/secret.txt", false, 10))
	assert.True(t, c.Match("secret.txt", false, 10))
	assert.True(t, c.Match("main.c", false, 10))
}

func TestExplicitIncludeBeatsGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\n"), 0o644))

	c := NewChain()
	require.NoError(t, c.AddInclude("keep.log"))
	require.NoError(t, c.AddGitignore(root))

	assert.True(t, c.Match("keep.log", false, 10))
	assert.False(t, c.Match("other.log", false, 10))
}

func TestAddGitignoreNoFiles(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddGitignore(t.TempDir()))
	assert.True(t, c.Match("anything", false, 1))
}
