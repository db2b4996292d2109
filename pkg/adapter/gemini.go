package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini produces embeddings through the Gemini API on Vertex AI.
type Gemini struct {
	client         *genai.Client
	embeddingModel string
	dimensions     int
}

type GeminiOption func(*Gemini)

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.embeddingModel = model
	}
}

// WithDimensions requests a specific output dimensionality so the vectors
// fit the provisioned vector columns.
func WithDimensions(dims int) GeminiOption {
	return func(g *Gemini) {
		g.dimensions = dims
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &Gemini{
		client:         client,
		embeddingModel: "gemini-embedding-001",
		dimensions:     768,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Embed converts text into an embedding vector
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{}
	if g.dimensions > 0 {
		dims := int32(g.dimensions)
		config.OutputDimensionality = &dims
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("embedding response is empty", goerr.V("model", g.embeddingModel))
	}

	return resp.Embeddings[0].Values, nil
}

func (g *Gemini) Dimensions() int {
	return g.dimensions
}
