package embed

import (
	"context"
	"fmt"
	"strings"
)

// New builds the configured Embedder, wrapped to enforce the declared
// dimension on every response.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}

	var (
		inner Embedder
		err   error
	)
	switch cfg.Provider {
	case "local":
		inner = newLocal(cfg)

	case "litellm":
		provider, model, ok := strings.Cut(cfg.Model, "/")
		if !ok {
			return nil, fmt.Errorf("litellm model %q must be prefixed provider/model-id", cfg.Model)
		}
		switch provider {
		case "openai":
			inner, err = newOpenAI(cfg, model)
		case "bedrock":
			inner, err = newBedrock(ctx, cfg, model)
		case "cohere":
			inner, err = newCohere(cfg, model)
		default:
			return nil, fmt.Errorf("unsupported litellm provider prefix %q (supported: openai, bedrock, cohere)", provider)
		}
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported embeddings provider %q (supported: local, litellm)", cfg.Provider)
	}

	return &guard{inner: inner, dim: cfg.Dimension}, nil
}
