// Package nn implements the inference-only layers the pipeline needs:
// dense, convolutional, and normalization layers with weights exported from
// the trained models. There is no autograd and no training path; every
// forward pass is deterministic for fixed weights and inputs.
package nn

import "math"

// Tensor is a dense CHW-ordered feature map.
type Tensor struct {
	C, H, W int
	Data    []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(c, h, w int) *Tensor {
	return &Tensor{C: c, H: h, W: w, Data: make([]float32, c*h*w)}
}

// At returns the element at channel c, row y, column x.
func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Set assigns the element at channel c, row y, column x.
func (t *Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*t.H+y)*t.W+x] = v
}

// Linear is a fully connected layer with weights shaped [out][in].
type Linear struct {
	W [][]float32 `json:"w"`
	B []float32   `json:"b"`
}

// Forward computes Wx + b.
func (l *Linear) Forward(x []float32) []float32 {
	out := make([]float32, len(l.W))
	for i, row := range l.W {
		var sum float32
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum + l.B[i]
	}
	return out
}

// InDim returns the expected input width.
func (l *Linear) InDim() int {
	if len(l.W) == 0 {
		return 0
	}
	return len(l.W[0])
}

// BatchNorm is a 1-d batch normalization layer in inference form: it applies
// the affine transform using the running statistics captured at training time.
type BatchNorm struct {
	Gamma []float32 `json:"gamma"`
	Beta  []float32 `json:"beta"`
	Mean  []float32 `json:"mean"`
	Var   []float32 `json:"var"`
	Eps   float32   `json:"eps"`
}

// Forward normalizes x in place and returns it.
func (b *BatchNorm) Forward(x []float32) []float32 {
	eps := b.Eps
	if eps == 0 {
		eps = 1e-5
	}
	for i := range x {
		inv := float32(1.0 / math.Sqrt(float64(b.Var[i]+eps)))
		x[i] = (x[i]-b.Mean[i])*inv*b.Gamma[i] + b.Beta[i]
	}
	return x
}

// Conv2d is a 2-d convolution with weights shaped [out][in][kh][kw].
type Conv2d struct {
	W      [][][][]float32 `json:"w"`
	B      []float32       `json:"b"`
	Stride int             `json:"stride"`
	Pad    int             `json:"pad"`
}

// Forward applies the convolution to a CHW tensor.
func (c *Conv2d) Forward(in *Tensor) *Tensor {
	stride := c.Stride
	if stride == 0 {
		stride = 1
	}
	outC := len(c.W)
	kh := len(c.W[0][0])
	kw := len(c.W[0][0][0])
	outH := (in.H+2*c.Pad-kh)/stride + 1
	outW := (in.W+2*c.Pad-kw)/stride + 1
	out := NewTensor(outC, outH, outW)

	for oc := 0; oc < outC; oc++ {
		kernel := c.W[oc]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				sum := c.B[oc]
				for ic := 0; ic < in.C; ic++ {
					for ky := 0; ky < kh; ky++ {
						iy := oy*stride + ky - c.Pad
						if iy < 0 || iy >= in.H {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*stride + kx - c.Pad
							if ix < 0 || ix >= in.W {
								continue
							}
							sum += kernel[ic][ky][kx] * in.At(ic, iy, ix)
						}
					}
				}
				out.Set(oc, oy, ox, sum)
			}
		}
	}
	return out
}

// ReLU clamps negatives to zero in place and returns the slice.
func ReLU(x []float32) []float32 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// ReLUTensor clamps a tensor's negatives to zero in place.
func ReLUTensor(t *Tensor) *Tensor {
	ReLU(t.Data)
	return t
}

// GlobalAvgPool reduces each channel to its spatial mean.
func GlobalAvgPool(t *Tensor) []float32 {
	out := make([]float32, t.C)
	area := float32(t.H * t.W)
	for c := 0; c < t.C; c++ {
		var sum float32
		for _, v := range t.Data[c*t.H*t.W : (c+1)*t.H*t.W] {
			sum += v
		}
		out[c] = sum / area
	}
	return out
}

// Sigmoid squashes a logit into (0,1).
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
