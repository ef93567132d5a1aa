package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "0", want: 0},
		{input: "4096", want: 4096},
		{input: "512b", want: 512},
		{input: "4k", want: 4 << 10},
		{input: "4KiB", want: 4 << 10},
		{input: "256M", want: 256 << 20},
		{input: "2g", want: 2 << 30},
		{input: "1.5G", want: 3 << 29},
		{input: "3T", want: 3 << 40},
		{input: "\t128K\n", want: 128 << 10},
		{input: "", wantErr: true},
		{input: "   ", wantErr: true},
		{input: "fast", wantErr: true},
		{input: "M", wantErr: true},
		{input: "-1K", wantErr: true},
		{input: "10 parsecs", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
