package adapter_test

import (
	"context"
	"math"
	"testing"

	"github.com/engramdb/engram/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func TestMockEmbedDeterministic(t *testing.T) {
	ctx := context.Background()
	embedder := adapter.NewMock(384)

	first, err := embedder.Embed(ctx, "hello world")
	gt.NoError(t, err)
	second, err := embedder.Embed(ctx, "hello world")
	gt.NoError(t, err)

	gt.Equal(t, first, second)
	gt.A(t, first).Length(384)
	gt.Equal(t, embedder.Dimensions(), 384)
}

func TestMockEmbedDistinctTexts(t *testing.T) {
	ctx := context.Background()
	embedder := adapter.NewMock(384)

	a, err := embedder.Embed(ctx, "postgres connection pooling")
	gt.NoError(t, err)
	b, err := embedder.Embed(ctx, "tokyo weather forecast")
	gt.NoError(t, err)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	gt.False(t, same)
}

func TestMockEmbedUnitNorm(t *testing.T) {
	ctx := context.Background()
	embedder := adapter.NewMock(768)

	vec, err := embedder.Embed(ctx, "normalize me")
	gt.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	gt.True(t, math.Abs(math.Sqrt(norm)-1.0) < 1e-3)
}
