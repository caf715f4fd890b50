package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/config"
	"github.com/openharbor-io/beacon/internal/registry/model"
)

// The document backends (documentdb, mongodb-ce, mongodb) share this
// implementation: one client, namespaced collections, _id = path. The
// is_enabled flag lives on the document itself, unlike the file backend's
// separate state ledger; GetState/SaveState present the same API over both.

func newMongoClient(ctx context.Context, cfg config.Settings) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.MongoURI())
	if cfg.DocDBUseIAM {
		opts.SetAuth(options.Credential{AuthMechanism: "MONGODB-AWS"})
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DocDBHost, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, cfg.DocDBHost, err)
	}
	return client, nil
}

// canonical strips trailing-slash variants so _id lookups never miss.
func canonical(path string) string {
	return "/" + strings.Trim(path, "/")
}

// mongoServerRepo implements ServerRepository over one collection.
type mongoServerRepo struct {
	col *mongo.Collection
}

func (r *mongoServerRepo) LoadAll(ctx context.Context) (map[string]model.Server, error) {
	list, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Server, len(list))
	for _, s := range list {
		out[s.Path] = s
	}
	return out, nil
}

func (r *mongoServerRepo) ListAll(ctx context.Context) ([]model.Server, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	var out []model.Server
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	return out, nil
}

func (r *mongoServerRepo) Get(ctx context.Context, path string) (*model.Server, error) {
	var s model.Server
	err := r.col.FindOne(ctx, bson.M{"_id": canonical(path)}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get server %s: %w", path, err)
	}
	return &s, nil
}

func (r *mongoServerRepo) Create(ctx context.Context, s *model.Server) error {
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create server %s: %w", s.Path, err)
	}
	return nil
}

func (r *mongoServerRepo) Update(ctx context.Context, s *model.Server) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.Path}, s)
	if err != nil {
		return fmt.Errorf("update server %s: %w", s.Path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoServerRepo) Delete(ctx context.Context, path string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": canonical(path)})
	if err != nil {
		return false, fmt.Errorf("delete server %s: %w", path, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *mongoServerRepo) SaveState(ctx context.Context, path string, enabled bool) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": canonical(path)},
		bson.M{"$set": bson.M{"is_enabled": enabled, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("save state %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoServerRepo) GetState(ctx context.Context, path string) (bool, error) {
	var doc struct {
		IsEnabled bool `bson:"is_enabled"`
	}
	err := r.col.FindOne(ctx, bson.M{"_id": canonical(path)},
		options.FindOne().SetProjection(bson.M{"is_enabled": 1})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get state %s: %w", path, err)
	}
	return doc.IsEnabled, nil
}

func (r *mongoServerRepo) UpdateRating(ctx context.Context, path, username string, rating int) (*model.Server, error) {
	// Read-modify-write; concurrent votes race, and the recompute from the
	// persisted list converges on the next write.
	s, err := r.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	s.ApplyRating(username, rating)
	if err := r.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *mongoServerRepo) UpdateHealth(ctx context.Context, path, status string, checkedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": canonical(path)},
		bson.M{"$set": bson.M{"health_status": status, "last_checked": checkedAt}})
	if err != nil {
		return fmt.Errorf("update health %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// mongoAgentRepo implements AgentRepository. Same shape as the server repo.
type mongoAgentRepo struct {
	col *mongo.Collection
}

func (r *mongoAgentRepo) LoadAll(ctx context.Context) (map[string]model.Agent, error) {
	list, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Agent, len(list))
	for _, a := range list {
		out[a.Path] = a
	}
	return out, nil
}

func (r *mongoAgentRepo) ListAll(ctx context.Context) ([]model.Agent, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	var out []model.Agent
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return out, nil
}

func (r *mongoAgentRepo) Get(ctx context.Context, path string) (*model.Agent, error) {
	var a model.Agent
	err := r.col.FindOne(ctx, bson.M{"_id": canonical(path)}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", path, err)
	}
	return &a, nil
}

func (r *mongoAgentRepo) Create(ctx context.Context, a *model.Agent) error {
	_, err := r.col.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create agent %s: %w", a.Path, err)
	}
	return nil
}

func (r *mongoAgentRepo) Update(ctx context.Context, a *model.Agent) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": a.Path}, a)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", a.Path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAgentRepo) Delete(ctx context.Context, path string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": canonical(path)})
	if err != nil {
		return false, fmt.Errorf("delete agent %s: %w", path, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *mongoAgentRepo) SaveState(ctx context.Context, path string, enabled bool) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": canonical(path)},
		bson.M{"$set": bson.M{"is_enabled": enabled, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("save state %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAgentRepo) GetState(ctx context.Context, path string) (bool, error) {
	var doc struct {
		IsEnabled bool `bson:"is_enabled"`
	}
	err := r.col.FindOne(ctx, bson.M{"_id": canonical(path)},
		options.FindOne().SetProjection(bson.M{"is_enabled": 1})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get state %s: %w", path, err)
	}
	return doc.IsEnabled, nil
}

func (r *mongoAgentRepo) UpdateRating(ctx context.Context, path, username string, rating int) (*model.Agent, error) {
	a, err := r.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	a.ApplyRating(username, rating)
	if err := r.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *mongoAgentRepo) UpdateHealth(ctx context.Context, path, status string, checkedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": canonical(path)},
		bson.M{"$set": bson.M{"health_status": status, "last_checked": checkedAt}})
	if err != nil {
		return fmt.Errorf("update health %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// mongoScopeRepo implements ScopeRepository; _id = scope name.
type mongoScopeRepo struct {
	col *mongo.Collection
}

func (r *mongoScopeRepo) ListAll(ctx context.Context) ([]model.Scope, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: list scopes: %v", ErrUnavailable, err)
	}
	var out []model.Scope
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	return out, nil
}

func (r *mongoScopeRepo) Get(ctx context.Context, name string) (*model.Scope, error) {
	var s model.Scope
	err := r.col.FindOne(ctx, bson.M{"_id": name}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scope %s: %w", name, err)
	}
	return &s, nil
}

func (r *mongoScopeRepo) Create(ctx context.Context, s *model.Scope) error {
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create scope %s: %w", s.Name, err)
	}
	return nil
}

func (r *mongoScopeRepo) Update(ctx context.Context, s *model.Scope) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.Name}, s)
	if err != nil {
		return fmt.Errorf("update scope %s: %w", s.Name, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoScopeRepo) Delete(ctx context.Context, name string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return false, fmt.Errorf("delete scope %s: %w", name, err)
	}
	return res.DeletedCount > 0, nil
}

// scanDoc wraps a scan result with a synthetic _id (results are append-only,
// the path alone cannot be the key) and the flattened status used by the
// compound index.
type scanDoc struct {
	ID                       string `bson:"_id"`
	model.SecurityScanResult `bson:",inline"`
	ScanStatus               string `bson:"scan_status"`
}

type mongoScanRepo struct {
	col *mongo.Collection
}

func (r *mongoScanRepo) Append(ctx context.Context, result model.SecurityScanResult) error {
	doc := scanDoc{
		ID:                 uuid.NewString(),
		SecurityScanResult: result,
		ScanStatus:         result.Status(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append scan for %s: %w", result.ServerPath, err)
	}
	return nil
}

func (r *mongoScanRepo) Latest(ctx context.Context, path string) (*model.SecurityScanResult, error) {
	var doc scanDoc
	err := r.col.FindOne(ctx, bson.M{"server_path": canonical(path)},
		options.FindOne().SetSort(bson.D{{Key: "scanned_at", Value: -1}})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest scan for %s: %w", path, err)
	}
	return &doc.SecurityScanResult, nil
}

func (r *mongoScanRepo) History(ctx context.Context, path string) ([]model.SecurityScanResult, error) {
	cur, err := r.col.Find(ctx, bson.M{"server_path": canonical(path)},
		options.Find().SetSort(bson.D{{Key: "scanned_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("scan history for %s: %w", path, err)
	}
	var docs []scanDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode scan history: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	out := make([]model.SecurityScanResult, len(docs))
	for i, d := range docs {
		out[i] = d.SecurityScanResult
	}
	return out, nil
}

// mongoFederationRepo implements FederationConfigRepository; _id = config ID.
type mongoFederationRepo struct {
	col *mongo.Collection
}

func (r *mongoFederationRepo) ListAll(ctx context.Context) ([]model.FederationConfig, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list federation configs: %w", err)
	}
	var out []model.FederationConfig
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode federation configs: %w", err)
	}
	return out, nil
}

func (r *mongoFederationRepo) Get(ctx context.Context, id string) (*model.FederationConfig, error) {
	var c model.FederationConfig
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get federation config %s: %w", id, err)
	}
	return &c, nil
}

func (r *mongoFederationRepo) Create(ctx context.Context, c *model.FederationConfig) error {
	_, err := r.col.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create federation config %s: %w", c.ID, err)
	}
	return nil
}

func (r *mongoFederationRepo) Update(ctx context.Context, c *model.FederationConfig) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		return fmt.Errorf("update federation config %s: %w", c.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoFederationRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete federation config %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}

// newMongoBackend connects the client and wires the per-kind repositories.
// nativeVector selects the $vectorSearch query path; the other flavors rank
// client-side from the start.
func newMongoBackend(ctx context.Context, cfg config.Settings, logger *zap.Logger, nativeVector bool) (*Backend, error) {
	client, err := newMongoClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.DocDBDatabase)

	b := &Backend{
		Servers:    &mongoServerRepo{col: db.Collection(cfg.ServersCollection())},
		Agents:     &mongoAgentRepo{col: db.Collection(cfg.AgentsCollection())},
		Scopes:     &mongoScopeRepo{col: db.Collection(cfg.ScopesCollection())},
		Scans:      &mongoScanRepo{col: db.Collection(cfg.ScansCollection())},
		Federation: &mongoFederationRepo{col: db.Collection(cfg.FederationCollection())},
		Search: &mongoSearchRepo{
			col:          db.Collection(cfg.EmbeddingsCollection()),
			indexName:    cfg.VectorIndexName,
			similarity:   cfg.VectorSimilarity,
			dimensions:   cfg.EmbeddingsDimensions,
			multiplier:   cfg.NumCandidatesMultiplier,
			nativeVector: nativeVector,
			logger:       logger,
		},
	}
	b.closers = append(b.closers, client.Disconnect)

	if err := createEntityIndexes(ctx, db, cfg); err != nil {
		// The registry still works without secondary indexes; DocumentDB
		// in particular rejects some index options.
		logger.Warn("creating entity indexes failed", zap.Error(err))
	}

	logger.Info("document storage backend ready",
		zap.String("backend", cfg.StorageBackend),
		zap.String("database", cfg.DocDBDatabase),
		zap.Bool("native_vector_search", nativeVector))
	return b, nil
}

func createEntityIndexes(ctx context.Context, db *mongo.Database, cfg config.Settings) error {
	type colIndex struct {
		col  string
		keys bson.D
	}
	for _, ci := range []colIndex{
		{cfg.ServersCollection(), bson.D{{Key: "is_enabled", Value: 1}, {Key: "tags", Value: 1}, {Key: "server_name", Value: 1}}},
		{cfg.AgentsCollection(), bson.D{{Key: "is_enabled", Value: 1}, {Key: "tags", Value: 1}, {Key: "name", Value: 1}}},
		{cfg.EmbeddingsCollection(), bson.D{{Key: "entity_type", Value: 1}}},
		{cfg.ScansCollection(), bson.D{{Key: "server_path", Value: 1}, {Key: "scan_status", Value: 1}, {Key: "scanned_at", Value: -1}}},
	} {
		_, err := db.Collection(ci.col).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: ci.keys})
		if err != nil {
			return fmt.Errorf("index on %s: %w", ci.col, err)
		}
	}
	return nil
}
