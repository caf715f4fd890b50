package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// DefaultMaxPerType caps each result family when the request does not say
// otherwise.
const DefaultMaxPerType = 3

// Embedder is the slice of the embedding adapter the search service needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the slice of the search repository the service needs. Query
// returns vector-scored candidates; boosting and ranking happen here so
// every backend ranks identically.
type Index interface {
	Index(ctx context.Context, doc model.SearchDocument) error
	Remove(ctx context.Context, path string, entityType model.EntityType) error
	Query(ctx context.Context, embedding []float32, types []model.EntityType, limit int) ([]model.ScoredDocument, error)
}

// Service executes hybrid queries and keeps the index synchronized with
// entity writes.
type Service struct {
	index      Index
	embedder   Embedder
	maxPerType int
	logger     *zap.Logger
}

// NewService builds a search Service. maxPerType ≤ 0 selects the default.
func NewService(index Index, embedder Embedder, maxPerType int, logger *zap.Logger) *Service {
	if maxPerType <= 0 {
		maxPerType = DefaultMaxPerType
	}
	return &Service{index: index, embedder: embedder, maxPerType: maxPerType, logger: logger}
}

// IndexServer (re)indexes one server. Failures are returned so callers can
// log them, but callers must never fail the entity write over them.
func (s *Service) IndexServer(ctx context.Context, srv *model.Server) error {
	embedding, err := s.embedder.Embed(ctx, ServerText(srv))
	if err != nil {
		return fmt.Errorf("embed server %s: %w", srv.Path, err)
	}
	return s.index.Index(ctx, ServerDocument(srv, embedding))
}

// IndexAgent (re)indexes one agent.
func (s *Service) IndexAgent(ctx context.Context, a *model.Agent) error {
	embedding, err := s.embedder.Embed(ctx, AgentText(a))
	if err != nil {
		return fmt.Errorf("embed agent %s: %w", a.Path, err)
	}
	return s.index.Index(ctx, AgentDocument(a, embedding))
}

// RemoveServer drops a server from the index.
func (s *Service) RemoveServer(ctx context.Context, path string) error {
	return s.index.Remove(ctx, path, model.EntityMCPServer)
}

// RemoveAgent drops an agent from the index.
func (s *Service) RemoveAgent(ctx context.Context, path string) error {
	return s.index.Remove(ctx, path, model.EntityA2AAgent)
}

// Search runs the hybrid query: embed, retrieve vector candidates, boost
// lexically, rank, cap per type, and fan matching tools out of their
// servers.
func (s *Service) Search(ctx context.Context, req model.SemanticSearchRequest) (*model.SemanticSearchResponse, error) {
	limit := req.MaxResults
	if limit <= 0 {
		limit = s.maxPerType
	}

	tokens := Tokenize(req.Query)
	pattern := TokenPattern(tokens)

	qv, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// The vector stage returns a wider net than the final caps; boosting
	// below can promote candidates the raw similarity ranked lower.
	candidates, err := s.index.Query(ctx, qv, req.EntityTypes, limit*3)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	type ranked struct {
		doc   model.SearchDocument
		score float64
	}
	rankedDocs := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		boost := TextBoost(&c.Doc, pattern)
		rankedDocs = append(rankedDocs, ranked{doc: c.Doc, score: HybridScore(c.VectorScore, boost)})
	}
	// Descending by score; ties broken by path ascending for stable output.
	sort.SliceStable(rankedDocs, func(i, j int) bool {
		if rankedDocs[i].score != rankedDocs[j].score {
			return rankedDocs[i].score > rankedDocs[j].score
		}
		return rankedDocs[i].doc.Path < rankedDocs[j].doc.Path
	})

	resp := &model.SemanticSearchResponse{
		Servers: []model.ServerHit{},
		Agents:  []model.AgentHit{},
		Tools:   []model.ToolHit{},
	}
	for _, r := range rankedDocs {
		switch r.doc.EntityType {
		case model.EntityMCPServer:
			if len(resp.Servers) < limit {
				resp.Servers = append(resp.Servers, model.ServerHit{
					Path:           r.doc.Path,
					Name:           r.doc.Metadata.Name,
					Description:    r.doc.Metadata.Description,
					Tags:           r.doc.Metadata.Tags,
					NumTools:       r.doc.Metadata.NumTools,
					IsEnabled:      r.doc.Metadata.IsEnabled,
					Transport:      r.doc.Metadata.Transport,
					RelevanceScore: r.score,
				})
			}
			for _, tool := range MatchingTools(&r.doc, pattern) {
				if len(resp.Tools) >= limit {
					break
				}
				resp.Tools = append(resp.Tools, model.ToolHit{
					ServerPath:     r.doc.Path,
					ServerName:     r.doc.Metadata.Name,
					ToolName:       tool.Name,
					Description:    tool.Description,
					InputSchema:    tool.InputSchema,
					RelevanceScore: r.score,
				})
			}
		case model.EntityA2AAgent:
			if len(resp.Agents) < limit {
				resp.Agents = append(resp.Agents, model.AgentHit{
					Path:           r.doc.Path,
					Name:           r.doc.Metadata.Name,
					Description:    r.doc.Metadata.Description,
					Tags:           r.doc.Metadata.Tags,
					URL:            r.doc.Metadata.URL,
					IsEnabled:      r.doc.Metadata.IsEnabled,
					RelevanceScore: r.score,
				})
			}
		}
		if len(resp.Servers) >= limit && len(resp.Agents) >= limit && len(resp.Tools) >= limit {
			break
		}
	}
	return resp, nil
}
