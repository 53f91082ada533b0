package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

// Artifact is the serialized symptom-classifier model: a small dense network
// with ReLU hidden activations and a softmax output over the class list.
// Instances are immutable after parse and safe for concurrent use.
type Artifact struct {
	FeatureWidth int      `json:"feature_width"`
	Classes      []string `json:"classes"`
	Layers       []Layer  `json:"layers"`
}

type Layer struct {
	// Weights is row-major [outputs][inputs].
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// ParseArtifact decodes and shape-checks artifact bytes. Malformed shapes are
// a caller/data mistake and reported as descriptive errors, never mapped to
// fallback output.
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.FeatureWidth <= 0 {
		return nil, fmt.Errorf("artifact feature_width must be positive, got %d", a.FeatureWidth)
	}
	if len(a.Classes) == 0 {
		return nil, fmt.Errorf("artifact has no classes")
	}
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("artifact has no layers")
	}

	in := a.FeatureWidth
	for i, layer := range a.Layers {
		if len(layer.Weights) == 0 {
			return nil, fmt.Errorf("artifact layer %d has no weights", i)
		}
		if len(layer.Biases) != len(layer.Weights) {
			return nil, fmt.Errorf("artifact layer %d: %d bias values for %d outputs", i, len(layer.Biases), len(layer.Weights))
		}
		for j, row := range layer.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("artifact layer %d row %d: %d inputs, expected %d", i, j, len(row), in)
			}
		}
		in = len(layer.Weights)
	}
	if in != len(a.Classes) {
		return nil, fmt.Errorf("artifact output width %d does not match %d classes", in, len(a.Classes))
	}
	return &a, nil
}

// Forward runs the network over one feature vector and returns the softmax
// class probabilities, index-aligned with Classes.
func (a *Artifact) Forward(features []float32) ([]float64, error) {
	if len(features) != a.FeatureWidth {
		return nil, fmt.Errorf("feature vector width %d, artifact expects %d", len(features), a.FeatureWidth)
	}

	act := make([]float64, len(features))
	for i, f := range features {
		act[i] = float64(f)
	}

	for li, layer := range a.Layers {
		next := make([]float64, len(layer.Weights))
		for o, row := range layer.Weights {
			sum := layer.Biases[o]
			for i, w := range row {
				sum += w * act[i]
			}
			next[o] = sum
		}
		if li < len(a.Layers)-1 {
			for o := range next {
				if next[o] < 0 {
					next[o] = 0
				}
			}
		}
		act = next
	}

	return softmax(act), nil
}

func softmax(logits []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range logits {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
