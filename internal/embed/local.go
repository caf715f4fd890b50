package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// localEmbedder speaks the Ollama-compatible /api/embed protocol of a local
// embedding server.
type localEmbedder struct {
	client  *http.Client
	baseURL string
	model   string
	dim     int

	// Local llama runners can crash under concurrent embedding requests;
	// serialize them.
	mu sync.Mutex
}

type localRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"` // string or []string
}

type localResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func newLocal(cfg Config) *localEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &localEmbedder{
		client:  &http.Client{Timeout: cfg.timeout()},
		baseURL: baseURL,
		model:   cfg.Model,
		dim:     cfg.Dimension,
	}
}

func (e *localEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, fmt.Errorf("local embedder returned no embeddings")
	}
	return vs[0], nil
}

func (e *localEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var input interface{} = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(localRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call local embedder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("local embedder returned %d: %s", resp.StatusCode, msg)
	}

	var out localResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("local embedder returned no embeddings")
	}
	return out.Embeddings, nil
}

func (e *localEmbedder) Dimension() int { return e.dim }
