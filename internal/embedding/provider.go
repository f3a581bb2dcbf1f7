package embedding

import (
	"fmt"

	"github.com/sachinecin/AHS-Agentic/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient creates an embedding client based on the provider name. The
// dimension must match the fact graph's; providers that support native
// truncation are asked for exactly that many components.
// Returns an error if the provider is unknown or the API key is empty
// (except for mock).
func NewClient(provider, apiKey string, dimension int) (domain.EmbeddingClient, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", domain.ErrConfiguration)
	}

	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewOpenAIClient(apiKey, dimension), nil

	case ProviderMock:
		return NewMockClient(dimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock)", provider)
	}
}
