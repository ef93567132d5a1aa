package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFailures(t *testing.T) {
	var buf bytes.Buffer
	rows := []FailureRow{
		{Path: "a/locked.txt", Kind: "permission_denied", Error: "open: permission denied"},
		{Path: "b", Kind: "destination_exists", Error: "b exists and is not a directory"},
	}
	require.NoError(t, RenderFailures(&buf, rows, 0))

	out := buf.String()
	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, "a/locked.txt")
	assert.Contains(t, out, "permission_denied")
	assert.Contains(t, out, "b exists and is not a directory")
	assert.NotContains(t, out, "more")
}

func TestRenderFailuresLimit(t *testing.T) {
	var buf bytes.Buffer
	rows := make([]FailureRow, 25)
	for i := range rows {
		rows[i] = FailureRow{Path: "f", Kind: "io_failure", Error: "boom"}
	}
	require.NoError(t, RenderFailures(&buf, rows, 20))
	assert.Contains(t, buf.String(), "... and 5 more")
}

func TestRenderFailuresEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderFailures(&buf, nil, 10))
	assert.Empty(t, buf.String())
}
