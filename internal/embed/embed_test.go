package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

func TestLocalEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req localRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "all-minilm" {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(localResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	e := newLocal(Config{Model: "all-minilm", BaseURL: srv.URL, Dimension: 3})
	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 3 {
		t.Errorf("embedding length = %d", len(v))
	}
}

func TestLocalEmbedder_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := newLocal(Config{Model: "missing", BaseURL: srv.URL, Dimension: 3})
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from failing server")
	}
}

func TestOpenAIEmbedder_batchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		// Answer out of order; the client must restore input order.
		resp := openaiResponse{}
		resp.Data = []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{
			{Embedding: []float32{1, 1}, Index: 1},
			{Embedding: []float32{0, 0}, Index: 0},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := newOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL, Dimension: 2}, "text-embedding-3-small")
	if err != nil {
		t.Fatalf("newOpenAI: %v", err)
	}
	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vs[0][0] != 0 || vs[1][0] != 1 {
		t.Errorf("order not restored: %v", vs)
	}
}

func TestOpenAIEmbedder_requiresKey(t *testing.T) {
	if _, err := newOpenAI(Config{}, "text-embedding-3-small"); err == nil {
		t.Fatal("missing API key accepted")
	}
}

func TestCohereEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cohereRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.InputType != "search_document" {
			t.Errorf("input_type = %q", req.InputType)
		}
		var resp cohereResponse
		resp.Embeddings.Float = [][]float32{{0.5, 0.5}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := newCohere(Config{APIKey: "co-test", BaseURL: srv.URL, Dimension: 2}, "embed-english-v3.0")
	if err != nil {
		t.Fatalf("newCohere: %v", err)
	}
	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 2 {
		t.Errorf("embedding length = %d", len(v))
	}
}

type stubInvoke struct {
	lastModelID string
	lastBody    []byte
	response    []byte
}

func (s *stubInvoke) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	s.lastModelID = *params.ModelId
	s.lastBody = params.Body
	return &bedrockruntime.InvokeModelOutput{Body: s.response}, nil
}

func TestBedrockEmbedder_titan(t *testing.T) {
	stub := &stubInvoke{response: []byte(`{"embedding":[0.1,0.2,0.3,0.4]}`)}
	e := &bedrockEmbedder{client: stub, modelID: "amazon.titan-embed-text-v2:0", dim: 4}

	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 4 {
		t.Errorf("embedding length = %d", len(v))
	}
	if stub.lastModelID != "amazon.titan-embed-text-v2:0" {
		t.Errorf("model id = %q", stub.lastModelID)
	}
	var req titanRequest
	json.Unmarshal(stub.lastBody, &req)
	if req.InputText != "hello" || req.Dimensions != 4 {
		t.Errorf("titan request = %+v", req)
	}
}

func TestBedrockEmbedder_cohereShape(t *testing.T) {
	stub := &stubInvoke{response: []byte(`{"embeddings":[[1,0],[0,1]]}`)}
	e := &bedrockEmbedder{client: stub, modelID: "cohere.embed-english-v3", dim: 2}

	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vs) != 2 {
		t.Errorf("batch size = %d", len(vs))
	}
	var req bedrockCohereRequest
	json.Unmarshal(stub.lastBody, &req)
	if len(req.Texts) != 2 {
		t.Errorf("cohere request = %+v", req)
	}
}

func TestGuard_dimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(localResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer srv.Close()

	e, err := New(context.Background(), Config{Provider: "local", Model: "m", BaseURL: srv.URL, Dimension: 384})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("dimension mismatch not rejected")
	}
}

func TestNew_validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{Provider: "local", Dimension: 0}); err == nil {
		t.Error("zero dimension accepted")
	}
	if _, err := New(ctx, Config{Provider: "litellm", Model: "no-prefix", Dimension: 4}); err == nil {
		t.Error("unprefixed litellm model accepted")
	}
	if _, err := New(ctx, Config{Provider: "litellm", Model: "azure/foo", Dimension: 4}); err == nil {
		t.Error("unknown prefix accepted")
	}
	if _, err := New(ctx, Config{Provider: "tensorflow", Dimension: 4}); err == nil {
		t.Error("unknown provider accepted")
	}
}
