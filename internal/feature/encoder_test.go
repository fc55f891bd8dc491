package feature

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalyk/deepscan/internal/media"
	"github.com/imalyk/deepscan/internal/nn"
)

// tinyBackbone builds a 4x4-input backbone with a single 2x2 stride-2 conv
// and a 2-d projection, small enough to reason about by hand.
func tinyBackbone() *Backbone {
	conv := nn.Conv2d{
		W: [][][][]float32{
			{
				{{0.25, 0.25}, {0.25, 0.25}}, // R
				{{0, 0}, {0, 0}},             // G
				{{0, 0}, {0, 0}},             // B
			},
		},
		B:      []float32{0},
		Stride: 2,
	}
	return &Backbone{
		InputSize: 4,
		Mean:      []float32{0, 0, 0},
		Std:       []float32{1, 1, 1},
		Convs:     []nn.Conv2d{conv},
		Proj: nn.Linear{
			W: [][]float32{{1}, {-1}},
			B: []float32{0, 0},
		},
	}
}

func solidFrame(size int, r, g, b byte) media.Frame {
	pix := make([]byte, size*size*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return media.Frame{Width: size, Height: size, Pix: pix}
}

func TestEncodeShapeAndDeterminism(t *testing.T) {
	enc := NewEncoder(tinyBackbone(), 2)
	frames := []media.Frame{
		solidFrame(4, 255, 0, 0),
		solidFrame(4, 0, 255, 0),
	}

	first, err := enc.Encode(context.Background(), frames)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Len(t, first[0], 2)

	second, err := enc.Encode(context.Background(), frames)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeValues(t *testing.T) {
	enc := NewEncoder(tinyBackbone(), 1)

	// Solid red: every conv output is 0.25*4*1.0 = 1.0, GAP keeps 1.0,
	// projection yields [1, -1].
	out, err := enc.Encode(context.Background(), []media.Frame{solidFrame(4, 255, 0, 0)})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out[0][0], 1e-5)
	assert.InDelta(t, -1.0, out[0][1], 1e-5)

	// Green channel is ignored by the kernel.
	out, err = enc.Encode(context.Background(), []media.Frame{solidFrame(4, 0, 255, 0)})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[0][0], 1e-5)
}

func TestEncodeRejectsWrongFrameSize(t *testing.T) {
	enc := NewEncoder(tinyBackbone(), 1)

	_, err := enc.Encode(context.Background(), []media.Frame{solidFrame(8, 1, 2, 3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backbone expects")
}

func TestEncodeRejectsEmptyBatch(t *testing.T) {
	enc := NewEncoder(tinyBackbone(), 1)

	_, err := enc.Encode(context.Background(), nil)
	assert.Error(t, err)
}

func TestLoadBackboneRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backbone.json")
	data, err := json.Marshal(tinyBackbone())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	b, err := LoadBackbone(path)
	require.NoError(t, err)
	assert.Equal(t, 4, b.InputSize)
	assert.Equal(t, 2, b.EmbeddingDim())
}

func TestLoadBackboneRejectsMissingPreprocessing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backbone.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"input_size":0}`), 0o644))

	_, err := LoadBackbone(path)
	assert.Error(t, err)
}
