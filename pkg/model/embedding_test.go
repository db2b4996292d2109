package model_test

import (
	"math"
	"testing"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestClampEmbedding(t *testing.T) {
	vec := []float32{0.1234567, -0.9999999, 0.5}
	clamped := model.ClampEmbedding(vec)

	gt.A(t, clamped).Length(3)
	gt.Equal(t, clamped[0], float32(0.123457))
	gt.Equal(t, clamped[1], float32(-1.0))
	gt.Equal(t, clamped[2], float32(0.5))
}

func TestClampEmbeddingNonFinite(t *testing.T) {
	vec := []float32{
		float32(math.NaN()),
		float32(math.Inf(1)),
		float32(math.Inf(-1)),
		0.25,
	}
	clamped := model.ClampEmbedding(vec)

	gt.A(t, clamped).Length(4)
	gt.Equal(t, clamped[0], float32(0))
	gt.Equal(t, clamped[1], float32(0))
	gt.Equal(t, clamped[2], float32(0))
	gt.Equal(t, clamped[3], float32(0.25))
}

func TestClampEmbeddingStable(t *testing.T) {
	vec := []float32{0.123456789, 0.987654321, -0.555555555}
	once := model.ClampEmbedding(vec)
	twice := model.ClampEmbedding(once)
	gt.Equal(t, once, twice)
}

func TestClampEmbeddingEmpty(t *testing.T) {
	gt.A(t, model.ClampEmbedding(nil)).Length(0)
	gt.A(t, model.ClampEmbedding([]float32{})).Length(0)
}

func TestValidateEmbedding(t *testing.T) {
	vec := make([]float32, 384)

	gt.NoError(t, model.ValidateEmbedding(vec, 384))

	err := model.ValidateEmbedding(vec, 1536)
	gt.Error(t, err)
	gt.True(t, model.IsDimensionMismatch(err))
	gt.True(t, model.IsValidation(err))

	err = model.ValidateEmbedding(nil, 384)
	gt.Error(t, err)
	gt.True(t, model.IsDimensionMismatch(err))
}
