package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/engramdb/engram/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func TestGeminiEmbed(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1", adapter.WithDimensions(768))
	gt.NoError(t, err)

	vec, err := client.Embed(ctx, "the quick brown fox jumps over the lazy dog")
	gt.NoError(t, err)
	gt.A(t, vec).Length(768)
}
