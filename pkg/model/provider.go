package model

import "github.com/m-mizutani/goerr/v2"

// EmbeddingProvider selects which embedding model family the store is
// provisioned for. Exactly one provider is active per deployment and its
// dimension is baked into the vector columns at bootstrap.
type EmbeddingProvider string

const (
	ProviderOpenAI  EmbeddingProvider = "openai"
	ProviderOllama  EmbeddingProvider = "ollama"
	ProviderGaiaNet EmbeddingProvider = "gaianet"
	ProviderBGE     EmbeddingProvider = "bge"
)

// DefaultProvider is used when no provider is configured.
const DefaultProvider = ProviderBGE

// EmbeddingProviders returns all known providers.
func EmbeddingProviders() []EmbeddingProvider {
	return []EmbeddingProvider{ProviderOpenAI, ProviderOllama, ProviderGaiaNet, ProviderBGE}
}

// Validate checks if the provider is a known one
func (p EmbeddingProvider) Validate() error {
	switch p {
	case ProviderOpenAI, ProviderOllama, ProviderGaiaNet, ProviderBGE:
		return nil
	default:
		return goerr.New("unknown embedding provider", goerr.V("provider", p), goerr.T(ErrTagValidation))
	}
}

// Dimensions returns the embedding vector length of the provider.
func (p EmbeddingProvider) Dimensions() int {
	switch p {
	case ProviderOpenAI:
		return 1536
	case ProviderOllama:
		return 1024
	case ProviderGaiaNet:
		return 768
	default:
		return 384
	}
}

// SessionFlag returns the session variable the schema bootstrap sets to
// communicate the provider choice to the DDL. The default provider has no
// flag, it applies when all flags are false.
func (p EmbeddingProvider) SessionFlag() string {
	switch p {
	case ProviderOpenAI:
		return "app.use_openai_embedding"
	case ProviderOllama:
		return "app.use_ollama_embedding"
	case ProviderGaiaNet:
		return "app.use_gaianet_embedding"
	default:
		return ""
	}
}
