// Package embed turns entity text into dense vectors. Two provider families
// are supported: a local embedding server ("local") and remote APIs behind a
// prefixed model name ("litellm" style, e.g. openai/text-embedding-3-small,
// bedrock/amazon.titan-embed-text-v2:0, cohere/embed-english-v3.0).
package embed

import (
	"context"
	"fmt"
	"time"
)

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and parameterizes a provider.
type Config struct {
	// Provider is "local" or "litellm".
	Provider string
	// Model is the model name; for litellm it must carry a provider prefix.
	Model string
	// Dimension is the deployment-fixed vector width. Every response is
	// checked against it.
	Dimension int
	// BaseURL overrides the provider endpoint (required for local).
	BaseURL string
	// APIKey authenticates openai/ and cohere/ models. Bedrock uses the
	// ambient AWS credential chain instead.
	APIKey string
	// AWSRegion pins the Bedrock region; empty falls back to the SDK chain.
	AWSRegion string
	// Timeout bounds each provider call. Zero means 30s.
	Timeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// guard wraps a provider and enforces the declared dimension on every
// response, so a misconfigured model fails loudly on first use instead of
// poisoning the index.
type guard struct {
	inner Embedder
	dim   int
}

func (g *guard) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) != g.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: model returned %d, configured %d", len(v), g.dim)
	}
	return v, nil
}

func (g *guard) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vs, err := g.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		if len(v) != g.dim {
			return nil, fmt.Errorf("embedding dimension mismatch: model returned %d, configured %d", len(v), g.dim)
		}
	}
	return vs, nil
}

func (g *guard) Dimension() int { return g.dim }
