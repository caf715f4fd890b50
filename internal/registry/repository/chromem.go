package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// chromemSearchRepo is the embedded vector index behind the file backend.
// Embeddings are computed upstream, so the collection's embedding function
// must never run.
type chromemSearchRepo struct {
	db     *chromem.DB
	col    *chromem.Collection
	mu     sync.Mutex
	logger *zap.Logger
}

const chromemCollection = "beacon_search"

func newChromemSearchRepo(dir string, logger *zap.Logger) (*chromemSearchRepo, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector index at %s: %w", dir, err)
	}
	noEmbed := func(_ context.Context, _ string) ([]float32, error) {
		return nil, fmt.Errorf("embeddings must be precomputed")
	}
	col, err := db.GetOrCreateCollection(chromemCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", chromemCollection, err)
	}
	return &chromemSearchRepo{db: db, col: col, logger: logger}, nil
}

func (r *chromemSearchRepo) EnsureIndexes(context.Context) error { return nil }

func (r *chromemSearchRepo) Index(ctx context.Context, doc model.SearchDocument) error {
	// The render snapshot rides in the document content; chromem metadata
	// only holds the flat fields we filter on.
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", doc.Path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.col.AddDocuments(ctx, []chromem.Document{{
		ID:        doc.Path,
		Content:   string(meta),
		Embedding: doc.Embedding,
		Metadata: map[string]string{
			"entity_type": string(doc.EntityType),
			"text":        doc.Text,
		},
	}}, 1)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.Path, err)
	}
	return nil
}

func (r *chromemSearchRepo) Remove(ctx context.Context, path string, _ model.EntityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.col.Delete(ctx, nil, nil, path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (r *chromemSearchRepo) Query(ctx context.Context, embedding []float32, types []model.EntityType, limit int) ([]model.ScoredDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// chromem rejects queries asking for more results than the collection
	// holds, and filters to a single metadata value, so we query per type
	// and merge. The service re-ranks anyway.
	if len(types) == 0 {
		types = []model.EntityType{model.EntityMCPServer, model.EntityA2AAgent}
	}

	var out []model.ScoredDocument
	for _, et := range types {
		if et == model.EntityMCPTool {
			// Tools are fanned out of their owning server documents.
			continue
		}
		results, err := r.queryType(ctx, embedding, et, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

func (r *chromemSearchRepo) queryType(ctx context.Context, embedding []float32, et model.EntityType, limit int) ([]model.ScoredDocument, error) {
	count := r.col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}
	results, err := r.col.QueryEmbedding(ctx, embedding, limit,
		map[string]string{"entity_type": string(et)}, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", et, err)
	}

	out := make([]model.ScoredDocument, 0, len(results))
	for _, res := range results {
		var meta model.SearchMeta
		if err := json.Unmarshal([]byte(res.Content), &meta); err != nil {
			r.logger.Warn("dropping index entry with unreadable snapshot",
				zap.String("path", res.ID), zap.Error(err))
			continue
		}
		out = append(out, model.ScoredDocument{
			Doc: model.SearchDocument{
				Path:       res.ID,
				EntityType: et,
				Text:       res.Metadata["text"],
				Metadata:   meta,
			},
			VectorScore: float64(res.Similarity),
		})
	}
	return out, nil
}

func (r *chromemSearchRepo) Count(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.col.Count()), nil
}
