// Package classify scores embedding batches with the trained feed-forward
// classifier and derives the verdict reported to users.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/imalyk/deepscan/internal/nn"
)

// ErrBadShape rejects embedding matrices that are not [N>=1, inputDim].
var ErrBadShape = errors.New("invalid feature shape")

// hiddenLayer is one Linear -> ReLU -> BatchNorm block. Dropout exists only
// at training time and has no inference form, so it does not appear here.
type hiddenLayer struct {
	Linear nn.Linear    `json:"linear"`
	Norm   nn.BatchNorm `json:"norm"`
}

// Model is the trained MLP: three hidden blocks narrowing 1792 -> 1024 ->
// 512 -> 128, then a single-logit output head.
type Model struct {
	InputDim int           `json:"input_dim"`
	Hidden   []hiddenLayer `json:"hidden"`
	Out      nn.Linear     `json:"out"`
}

// LoadModel reads exported classifier weights.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier weights: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse classifier weights: %w", err)
	}
	if m.InputDim <= 0 {
		return nil, errors.New("classifier weights missing input_dim")
	}
	return &m, nil
}

var sharedModel struct {
	once sync.Once
	m    *Model
	err  error
}

// SharedModel loads the classifier at most once per process.
func SharedModel(path string) (*Model, error) {
	sharedModel.once.Do(func() {
		sharedModel.m, sharedModel.err = LoadModel(path)
	})
	return sharedModel.m, sharedModel.err
}

// forward runs a single vector through the network and returns the logit.
func (m *Model) forward(x []float32) float64 {
	h := make([]float32, len(x))
	copy(h, x)
	for i := range m.Hidden {
		h = m.Hidden[i].Norm.Forward(nn.ReLU(m.Hidden[i].Linear.Forward(h)))
	}
	out := m.Out.Forward(h)
	return float64(out[0])
}

// validate checks the [N>=1, inputDim] contract.
func (m *Model) validate(features [][]float32) error {
	if len(features) == 0 {
		return fmt.Errorf("%w: expected [N, %d] with N >= 1", ErrBadShape, m.InputDim)
	}
	for i, row := range features {
		if len(row) != m.InputDim {
			return fmt.Errorf("%w: row %d has %d columns, expected %d", ErrBadShape, i, len(row), m.InputDim)
		}
	}
	return nil
}

// Probability mean-pools the embedding matrix and returns the fake
// probability for the pooled vector.
func (m *Model) Probability(features [][]float32) (float64, error) {
	if err := m.validate(features); err != nil {
		return 0, err
	}

	mean := make([]float32, m.InputDim)
	for _, row := range features {
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float32(len(features))
	for j := range mean {
		mean[j] /= n
	}

	return nn.Sigmoid(m.forward(mean)), nil
}

// FrameProbabilities scores every frame embedding individually. Used only
// for explanatory artifacts, never for the verdict itself.
func (m *Model) FrameProbabilities(features [][]float32) ([]float64, error) {
	if err := m.validate(features); err != nil {
		return nil, err
	}
	probs := make([]float64, len(features))
	for i, row := range features {
		probs[i] = nn.Sigmoid(m.forward(row))
	}
	return probs, nil
}
