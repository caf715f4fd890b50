package search

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// stubEmbedder maps known texts to fixed vectors; everything else gets a
// far-away default.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedder down")
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

// stubIndex holds documents in memory and scores with real cosine.
type stubIndex struct {
	docs    map[string]model.SearchDocument
	removed []string
}

func newStubIndex() *stubIndex {
	return &stubIndex{docs: map[string]model.SearchDocument{}}
}

func (s *stubIndex) Index(_ context.Context, doc model.SearchDocument) error {
	s.docs[string(doc.EntityType)+":"+doc.Path] = doc
	return nil
}

func (s *stubIndex) Remove(_ context.Context, path string, entityType model.EntityType) error {
	delete(s.docs, string(entityType)+":"+path)
	s.removed = append(s.removed, path)
	return nil
}

func (s *stubIndex) Query(_ context.Context, embedding []float32, types []model.EntityType, limit int) ([]model.ScoredDocument, error) {
	var out []model.ScoredDocument
	for _, doc := range s.docs {
		if len(types) > 0 && !containsType(types, doc.EntityType) {
			continue
		}
		out = append(out, model.ScoredDocument{Doc: doc, VectorScore: CosineSimilarity(embedding, doc.Embedding)})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsType(types []model.EntityType, t model.EntityType) bool {
	for _, have := range types {
		if have == t {
			return true
		}
	}
	return false
}

func seedService(t *testing.T) (*Service, *stubIndex) {
	t.Helper()
	idx := newStubIndex()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	svc := NewService(idx, emb, 3, zap.NewNop())

	timeServer := &model.Server{
		Path:        "/currenttime",
		ServerName:  "currenttime",
		Description: "Time utilities",
		IsEnabled:   true,
		ToolList: []model.ToolDef{
			{Name: "get_time", Description: "return the current UTC time", InputSchema: map[string]interface{}{"type": "object"}},
		},
	}
	emb.vectors[ServerText(timeServer)] = []float32{1, 0, 0}

	finServer := &model.Server{
		Path:        "/fininfo",
		ServerName:  "fininfo",
		Description: "Financial data",
		IsEnabled:   true,
		ToolList:    []model.ToolDef{{Name: "quote", Description: "stock quote"}},
	}
	emb.vectors[ServerText(finServer)] = []float32{0, 1, 0}

	agent := &model.Agent{
		Path:        "/weather-agent",
		Name:        "weather-agent",
		Description: "weather forecasts",
		IsEnabled:   true,
	}
	emb.vectors[AgentText(agent)] = []float32{0.9, 0.1, 0}

	emb.vectors["current time"] = []float32{1, 0, 0}

	ctx := context.Background()
	if err := svc.IndexServer(ctx, timeServer); err != nil {
		t.Fatalf("IndexServer: %v", err)
	}
	if err := svc.IndexServer(ctx, finServer); err != nil {
		t.Fatalf("IndexServer: %v", err)
	}
	if err := svc.IndexAgent(ctx, agent); err != nil {
		t.Fatalf("IndexAgent: %v", err)
	}
	return svc, idx
}

func TestSearch_findsRegisteredServerAndTool(t *testing.T) {
	svc, _ := seedService(t)

	resp, err := svc.Search(context.Background(), model.SemanticSearchRequest{Query: "current time", MaxResults: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(resp.Servers) == 0 || resp.Servers[0].Path != "/currenttime" {
		t.Fatalf("top server = %+v, want /currenttime", resp.Servers)
	}
	foundTool := false
	for _, tool := range resp.Tools {
		if tool.ToolName == "get_time" {
			foundTool = true
			if tool.InputSchema == nil {
				t.Error("tool hit lost its input schema")
			}
		}
	}
	if !foundTool {
		t.Errorf("tools = %+v, want get_time fan-out", resp.Tools)
	}
}

func TestSearch_scoresWithinBounds(t *testing.T) {
	svc, _ := seedService(t)

	resp, err := svc.Search(context.Background(), model.SemanticSearchRequest{Query: "current time"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	check := func(score float64) {
		if score < 0 || score > 1 {
			t.Errorf("relevance score %v out of [0,1]", score)
		}
	}
	for _, h := range resp.Servers {
		check(h.RelevanceScore)
	}
	for _, h := range resp.Agents {
		check(h.RelevanceScore)
	}
	for _, h := range resp.Tools {
		check(h.RelevanceScore)
	}
}

func TestSearch_entityTypeFilter(t *testing.T) {
	svc, _ := seedService(t)

	resp, err := svc.Search(context.Background(), model.SemanticSearchRequest{
		Query:       "current time",
		EntityTypes: []model.EntityType{model.EntityA2AAgent},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Servers) != 0 {
		t.Errorf("servers leaked through agent-only filter: %+v", resp.Servers)
	}
	if len(resp.Agents) == 0 {
		t.Error("no agents returned despite filter")
	}
}

func TestSearch_perTypeCap(t *testing.T) {
	idx := newStubIndex()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	svc := NewService(idx, emb, 2, zap.NewNop())

	ctx := context.Background()
	for _, path := range []string{"/s1", "/s2", "/s3", "/s4"} {
		srv := &model.Server{Path: path, ServerName: model.TechnicalName(path), Description: "alpha service"}
		emb.vectors[ServerText(srv)] = []float32{1, 0, 0}
		if err := svc.IndexServer(ctx, srv); err != nil {
			t.Fatalf("IndexServer: %v", err)
		}
	}
	emb.vectors["alpha"] = []float32{1, 0, 0}

	resp, err := svc.Search(ctx, model.SemanticSearchRequest{Query: "alpha"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Servers) != 2 {
		t.Errorf("server results = %d, want capped at 2", len(resp.Servers))
	}
}

func TestSearch_tieBreakByPath(t *testing.T) {
	idx := newStubIndex()
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	svc := NewService(idx, emb, 3, zap.NewNop())

	ctx := context.Background()
	// Identical vectors and no lexical overlap: pure tie.
	for _, path := range []string{"/zeta", "/alpha", "/mid"} {
		srv := &model.Server{Path: path, ServerName: model.TechnicalName(path)}
		emb.vectors[ServerText(srv)] = []float32{1, 0, 0}
		if err := svc.IndexServer(ctx, srv); err != nil {
			t.Fatalf("IndexServer: %v", err)
		}
	}
	emb.vectors["unrelated"] = []float32{1, 0, 0}

	resp, err := svc.Search(ctx, model.SemanticSearchRequest{Query: "unrelated"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Servers) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Servers))
	}
	want := []string{"/alpha", "/mid", "/zeta"}
	for i, h := range resp.Servers {
		if h.Path != want[i] {
			t.Errorf("tie order[%d] = %s, want %s", i, h.Path, want[i])
		}
	}
}

func TestSearch_embedderFailure(t *testing.T) {
	svc := NewService(newStubIndex(), &stubEmbedder{fail: true}, 3, zap.NewNop())
	if _, err := svc.Search(context.Background(), model.SemanticSearchRequest{Query: "anything"}); err == nil {
		t.Fatal("expected error when embedder is down")
	}
}

func TestRemoveServer(t *testing.T) {
	svc, idx := seedService(t)
	if err := svc.RemoveServer(context.Background(), "/currenttime"); err != nil {
		t.Fatalf("RemoveServer: %v", err)
	}
	if _, ok := idx.docs[string(model.EntityMCPServer)+":/currenttime"]; ok {
		t.Error("document still present after removal")
	}
}
