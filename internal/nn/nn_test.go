package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearForward(t *testing.T) {
	l := &Linear{
		W: [][]float32{{1, 2}, {0, -1}},
		B: []float32{0.5, 1},
	}

	out := l.Forward([]float32{3, 4})
	require.Len(t, out, 2)
	assert.InDelta(t, 11.5, out[0], 1e-6) // 1*3 + 2*4 + 0.5
	assert.InDelta(t, -3.0, out[1], 1e-6) // -4 + 1
	assert.Equal(t, 2, l.InDim())
}

func TestBatchNormInference(t *testing.T) {
	bn := &BatchNorm{
		Gamma: []float32{2},
		Beta:  []float32{1},
		Mean:  []float32{3},
		Var:   []float32{4},
		Eps:   0,
	}

	out := bn.Forward([]float32{5})
	// (5-3)/sqrt(4+1e-5) * 2 + 1 ~= 3
	assert.InDelta(t, 3.0, out[0], 1e-3)
}

func TestConv2dIdentityKernel(t *testing.T) {
	// A 1x1 identity kernel with stride 1 should reproduce the input.
	conv := &Conv2d{
		W:      [][][][]float32{{{{1}}}},
		B:      []float32{0},
		Stride: 1,
	}

	in := NewTensor(1, 2, 2)
	copy(in.Data, []float32{1, 2, 3, 4})

	out := conv.Forward(in)
	require.Equal(t, 1, out.C)
	require.Equal(t, 2, out.H)
	require.Equal(t, 2, out.W)
	assert.Equal(t, in.Data, out.Data)
}

func TestConv2dStrideAndBias(t *testing.T) {
	conv := &Conv2d{
		W:      [][][][]float32{{{{1, 1}, {1, 1}}}},
		B:      []float32{10},
		Stride: 2,
	}

	in := NewTensor(1, 4, 4)
	for i := range in.Data {
		in.Data[i] = 1
	}

	out := conv.Forward(in)
	require.Equal(t, 2, out.H)
	require.Equal(t, 2, out.W)
	for _, v := range out.Data {
		assert.InDelta(t, 14.0, v, 1e-6) // 4 ones + bias 10
	}
}

func TestGlobalAvgPool(t *testing.T) {
	in := NewTensor(2, 2, 2)
	copy(in.Data, []float32{1, 2, 3, 4, 10, 10, 10, 10})

	out := GlobalAvgPool(in)
	require.Len(t, out, 2)
	assert.InDelta(t, 2.5, out[0], 1e-6)
	assert.InDelta(t, 10.0, out[1], 1e-6)
}

func TestReLU(t *testing.T) {
	out := ReLU([]float32{-1, 0, 2.5})
	assert.Equal(t, []float32{0, 0, 2.5}, out)
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-9)
	assert.Greater(t, Sigmoid(10), 0.999)
	assert.Less(t, Sigmoid(-10), 0.001)
}
