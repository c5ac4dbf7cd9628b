package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// EmbedderOptions selects and configures an embedding provider.
type EmbedderOptions struct {
	Provider  string
	APIKey    string
	Model     string
	Dimension int
	BaseURL   string
}

// NewEmbedder builds the configured provider. The default is OpenAI's
// text-embedding-3-small, the model the index format was designed around.
func NewEmbedder(ctx context.Context, opts EmbedderOptions) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "openai"
	}

	model := strings.TrimSpace(opts.Model)

	switch provider {
	case "openai":
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbedder(opts.APIKey, model, opts.Dimension, opts.BaseURL), nil
	case "gemini":
		return NewGeminiEmbedder(ctx, opts.APIKey, model, opts.Dimension)
	case "ollama":
		return NewOllamaEmbedder(model, opts.Dimension, opts.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", opts.Provider)
	}
}
