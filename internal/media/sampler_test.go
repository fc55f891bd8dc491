package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997002997},
		{"25", 25},
	}
	for _, tc := range cases {
		got, err := parseFrameRate(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}

	for _, bad := range []string{"", "abc", "30/0", "x/y"} {
		_, err := parseFrameRate(bad)
		assert.Error(t, err, bad)
	}
}

func TestSampleInterval(t *testing.T) {
	assert.Equal(t, 30, sampleInterval(30))
	assert.Equal(t, 30, sampleInterval(29.97))
	assert.Equal(t, 24, sampleInterval(23.976))
	assert.Equal(t, 1, sampleInterval(0))
	assert.Equal(t, 1, sampleInterval(0.4))
}

func TestReadFramesBoundedByMax(t *testing.T) {
	const w, h = 4, 4
	raw := bytes.Repeat([]byte{1, 2, 3}, w*h*10) // ten full frames

	frames, err := readFrames(bytes.NewReader(raw), w, h, 3)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, w, frames[0].Width)
	assert.Equal(t, h, frames[0].Height)
	assert.Len(t, frames[0].Pix, w*h*3)
}

func TestReadFramesStopsAtEOF(t *testing.T) {
	const w, h = 2, 2
	raw := bytes.Repeat([]byte{9}, w*h*3*2)

	frames, err := readFrames(bytes.NewReader(raw), w, h, 60)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestReadFramesDropsPartialTrailingFrame(t *testing.T) {
	const w, h = 2, 2
	raw := bytes.Repeat([]byte{9}, w*h*3+5)

	frames, err := readFrames(bytes.NewReader(raw), w, h, 60)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestReadFramesEmptyStream(t *testing.T) {
	frames, err := readFrames(bytes.NewReader(nil), 2, 2, 60)
	require.NoError(t, err)
	assert.Empty(t, frames)
}
