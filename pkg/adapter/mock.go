package adapter

import (
	"context"
	"hash/fnv"
	"math"
)

// Mock is a deterministic embedder for tests and offline use. Vectors are
// derived from a hash of the text and normalized to unit length, so equal
// texts always embed identically.
type Mock struct {
	dimensions int
}

func NewMock(dimensions int) *Mock {
	return &Mock{dimensions: dimensions}
}

// Embed creates a deterministic embedding from the text hash
func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	vec := make([]float32, m.dimensions)
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

func (m *Mock) Dimensions() int {
	return m.dimensions
}
