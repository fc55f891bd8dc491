// Package feature runs sampled frames through the frozen pretrained
// backbone to produce one fixed-length embedding per frame.
package feature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/imalyk/deepscan/internal/media"
	"github.com/imalyk/deepscan/internal/nn"
)

// Backbone is the exported convolutional feature extractor with its
// classification head removed. Weights are loaded once and never mutated.
type Backbone struct {
	InputSize int         `json:"input_size"`
	Mean      []float32   `json:"mean"`
	Std       []float32   `json:"std"`
	Convs     []nn.Conv2d `json:"convs"`
	Proj      nn.Linear   `json:"proj"`
}

// LoadBackbone reads an exported weights file.
func LoadBackbone(path string) (*Backbone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backbone weights: %w", err)
	}
	var b Backbone
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse backbone weights: %w", err)
	}
	if b.InputSize <= 0 || len(b.Mean) != 3 || len(b.Std) != 3 {
		return nil, errors.New("backbone weights missing preprocessing parameters")
	}
	return &b, nil
}

var sharedBackbone struct {
	once sync.Once
	b    *Backbone
	err  error
}

// SharedBackbone loads the backbone at most once per process and returns the
// shared read-only instance on every subsequent call.
func SharedBackbone(path string) (*Backbone, error) {
	sharedBackbone.once.Do(func() {
		sharedBackbone.b, sharedBackbone.err = LoadBackbone(path)
	})
	return sharedBackbone.b, sharedBackbone.err
}

// EmbeddingDim returns the length of the per-frame embedding vector.
func (b *Backbone) EmbeddingDim() int {
	return len(b.Proj.W)
}

// embed runs one preprocessed frame through the network.
func (b *Backbone) embed(frame media.Frame) []float32 {
	t := b.preprocess(frame)
	for i := range b.Convs {
		t = nn.ReLUTensor(b.Convs[i].Forward(t))
	}
	pooled := nn.GlobalAvgPool(t)
	return b.Proj.Forward(pooled)
}

// preprocess converts packed RGB bytes into a normalized CHW tensor using
// the backbone's per-channel statistics.
func (b *Backbone) preprocess(frame media.Frame) *nn.Tensor {
	t := nn.NewTensor(3, frame.Height, frame.Width)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			base := (y*frame.Width + x) * 3
			for c := 0; c < 3; c++ {
				v := float32(frame.Pix[base+c]) / 255.0
				t.Set(c, y, x, (v-b.Mean[c])/b.Std[c])
			}
		}
	}
	return t
}

// Encoder encodes frame batches, bounding concurrent inference so the
// CPU-bound work cannot oversubscribe the host while requests pile up.
type Encoder struct {
	backbone *Backbone
	sem      *semaphore.Weighted
}

// NewEncoder wraps a loaded backbone. maxConcurrent <= 0 defaults to 1.
func NewEncoder(backbone *Backbone, maxConcurrent int) *Encoder {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Encoder{
		backbone: backbone,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// InputSize returns the square frame size the backbone expects.
func (e *Encoder) InputSize() int {
	return e.backbone.InputSize
}

// Encode produces one embedding per frame. The call blocks while a slot is
// acquired, so callers should run it off their serving goroutine.
func (e *Encoder) Encode(ctx context.Context, frames []media.Frame) ([][]float32, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames to encode")
	}
	for i, f := range frames {
		if f.Width != e.backbone.InputSize || f.Height != e.backbone.InputSize {
			return nil, fmt.Errorf("frame %d is %dx%d, backbone expects %dx%d",
				i, f.Width, f.Height, e.backbone.InputSize, e.backbone.InputSize)
		}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	features := make([][]float32, len(frames))
	for i, f := range frames {
		features[i] = e.backbone.embed(f)
	}
	return features, nil
}
