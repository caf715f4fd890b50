package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/search"
)

// vectorSearchUnsupported is the server error code mongod returns for an
// unknown $vectorSearch stage when mongot is not attached.
const vectorSearchUnsupported = 31082

// mongoSearchRepo stores search documents in the embeddings collection and
// answers vector queries either through the native $vectorSearch stage or,
// when the deployment lacks mongot, by ranking client-side. The first
// unsupported-stage error flips the repo to the fallback permanently.
type mongoSearchRepo struct {
	col          *mongo.Collection
	indexName    string
	similarity   string
	dimensions   int
	multiplier   int
	nativeVector bool
	degraded     atomic.Bool
	logger       *zap.Logger
}

// EnsureIndexes creates the vector search index on the mongodb flavor.
// Failures are reported but the caller treats them as non-fatal: the query
// path degrades to client-side ranking on its own.
func (r *mongoSearchRepo) EnsureIndexes(ctx context.Context) error {
	if !r.nativeVector {
		return nil
	}
	definition := bson.M{
		"fields": []bson.M{
			{
				"type":          "vector",
				"path":          "embedding",
				"numDimensions": r.dimensions,
				"similarity":    r.similarity,
			},
			{
				"type": "filter",
				"path": "entity_type",
			},
		},
	}
	_, err := r.col.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(r.indexName).SetType("vectorSearch"),
	})
	if err != nil && !isIndexExists(err) {
		return fmt.Errorf("create vector index %s: %w", r.indexName, err)
	}
	return nil
}

func isIndexExists(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Name == "IndexAlreadyExists" {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "already exists")
}

func (r *mongoSearchRepo) Index(ctx context.Context, doc model.SearchDocument) error {
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.Path}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.Path, err)
	}
	return nil
}

func (r *mongoSearchRepo) Remove(ctx context.Context, path string, entityType model.EntityType) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": canonical(path), "entity_type": entityType})
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (r *mongoSearchRepo) Query(ctx context.Context, embedding []float32, types []model.EntityType, limit int) ([]model.ScoredDocument, error) {
	if r.nativeVector && !r.degraded.Load() {
		docs, err := r.queryNative(ctx, embedding, types, limit)
		if err == nil {
			return docs, nil
		}
		if !isVectorSearchUnsupported(err) {
			return nil, err
		}
		// mongot absent: degrade silently and stay degraded.
		r.degraded.Store(true)
		r.logger.Warn("native vector search unavailable, falling back to client-side ranking", zap.Error(err))
	}
	return r.queryClientSide(ctx, embedding, types, limit)
}

// isVectorSearchUnsupported recognizes the errors a deployment without
// mongot produces for the $vectorSearch stage.
func isVectorSearchUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == vectorSearchUnsupported {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "vectorSearch") || strings.Contains(msg, "mongot")
}

// vectorSearchStage builds the $vectorSearch stage. Entity-type constraints
// belong inside the stage's filter: a trailing $match would only post-filter
// the already-truncated top-limit results and can starve a type out of the
// response entirely.
func vectorSearchStage(indexName string, embedding []float32, types []model.EntityType, limit, multiplier int) bson.M {
	stage := bson.M{
		"index":         indexName,
		"path":          "embedding",
		"queryVector":   embedding,
		"numCandidates": limit * multiplier,
		"limit":         limit,
	}
	if len(types) > 0 {
		stage["filter"] = bson.M{"entity_type": bson.M{"$in": types}}
	}
	return stage
}

func (r *mongoSearchRepo) queryNative(ctx context.Context, embedding []float32, types []model.EntityType, limit int) ([]model.ScoredDocument, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: vectorSearchStage(r.indexName, embedding, types, limit, r.multiplier)}},
		bson.D{{Key: "$addFields", Value: bson.M{"vector_score": bson.M{"$meta": "vectorSearchScore"}}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		model.SearchDocument `bson:",inline"`
		VectorScore          float64 `bson:"vector_score"`
	}
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode vector results: %w", err)
	}

	out := make([]model.ScoredDocument, 0, len(raw))
	for _, doc := range raw {
		score := doc.VectorScore
		if r.similarity == "cosine" {
			// The search stage reports cosine already normalized to [0,1];
			// callers expect the raw similarity.
			score = 2*score - 1
		}
		out = append(out, model.ScoredDocument{Doc: doc.SearchDocument, VectorScore: score})
	}
	return out, nil
}

func (r *mongoSearchRepo) queryClientSide(ctx context.Context, embedding []float32, types []model.EntityType, limit int) ([]model.ScoredDocument, error) {
	filter := bson.M{}
	if len(types) > 0 {
		filter["entity_type"] = bson.M{"$in": types}
	}
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch index documents: %w", err)
	}
	var docs []model.SearchDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode index documents: %w", err)
	}

	out := make([]model.ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, model.ScoredDocument{
			Doc:         doc,
			VectorScore: search.CosineSimilarity(embedding, doc.Embedding),
		})
	}
	// Keep the strongest vector candidates; hybrid re-ranking upstream
	// works from the same pool size as the native stage returns.
	if len(out) > limit {
		topK(out, limit)
		out = out[:limit]
	}
	return out, nil
}

// topK partially sorts docs so the first k entries are the highest-scored.
func topK(docs []model.ScoredDocument, k int) {
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(docs); j++ {
			if docs[j].VectorScore > docs[best].VectorScore {
				best = j
			}
		}
		docs[i], docs[best] = docs[best], docs[i]
	}
}

func (r *mongoSearchRepo) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}
