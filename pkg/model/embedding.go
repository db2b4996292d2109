package model

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
)

const embeddingPrecision = 1e6

// ClampEmbedding rounds every component to six decimal places and coerces
// non-finite values to zero. Applied to every vector before it is stored or
// used in a search so equality is stable across round-trips.
func ClampEmbedding(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[i] = float32(math.Round(f*embeddingPrecision) / embeddingPrecision)
	}
	return out
}

// ValidateEmbedding checks the vector length against the provider dimension.
func ValidateEmbedding(vec []float32, dims int) error {
	if len(vec) != dims {
		return goerr.New("embedding dimension mismatch",
			goerr.V("expected", dims), goerr.V("actual", len(vec)), goerr.T(ErrTagDimension))
	}
	return nil
}
