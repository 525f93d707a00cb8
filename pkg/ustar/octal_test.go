package ustar

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/beam-cloud/untar/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeField(n uint64, width int, terminator byte) []byte {
	field := []byte(fmt.Sprintf("%0*o", width-1, n))
	return append(field, terminator)
}

func TestParseOctalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, width := range []int{8, 12} {
		max := uint64(1)<<(3*(width-1)) - 1
		values := []uint64{0, 1, 7, 8, 0o644, 0o755, max}
		for i := 0; i < 200; i++ {
			values = append(values, rng.Uint64()%(max+1))
		}

		for _, terminator := range []byte{0, ' '} {
			for _, v := range values {
				got, err := ParseOctal(encodeField(v, width, terminator))
				require.NoError(t, err)
				require.Equal(t, v, got, "width=%d terminator=%q", width, terminator)
			}
		}
	}
}

func TestParseOctal(t *testing.T) {
	tests := []struct {
		name  string
		field []byte
		want  uint64
	}{
		{name: "all NUL 8", field: make([]byte, 8), want: 0},
		{name: "all NUL 12", field: make([]byte, 12), want: 0},
		{name: "all space", field: bytes.Repeat([]byte(" "), 12), want: 0},
		{name: "no terminator", field: []byte("00000644"), want: 0o644},
		{name: "space then NUL", field: []byte("000644 \x00"), want: 0o644},
		{name: "leading spaces", field: []byte("   644 \x00"), want: 0o644},
		{name: "bytes after terminator ignored", field: []byte("0017\x00999"), want: 0o17},
		{name: "full 12 byte field", field: []byte("777777777777"), want: 1<<36 - 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOctal(tc.field)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseOctalRejectsMalformed(t *testing.T) {
	_, err := ParseOctal([]byte("0006x4\x00\x00"))
	require.ErrorIs(t, err, common.ErrInvalidOctal)

	_, err = ParseOctal([]byte("0000009\x00"))
	require.ErrorIs(t, err, common.ErrInvalidOctal)

	_, err = ParseOctal(bytes.Repeat([]byte("7"), 23))
	require.ErrorIs(t, err, common.ErrOctalOverflow)
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, int64(0), RoundUp(0))
	assert.Equal(t, int64(512), RoundUp(1))
	assert.Equal(t, int64(512), RoundUp(512))
	assert.Equal(t, int64(1024), RoundUp(513))
	assert.Equal(t, int64(511), Padding(513))
	assert.Equal(t, int64(0), Padding(1024))
}
