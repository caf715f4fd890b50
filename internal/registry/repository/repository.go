// Package repository defines the storage contracts for registry entities and
// provides the file and document-database implementations behind them.
// Callers pick a backend once through NewBackend; nothing above this package
// branches on the storage kind again.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/config"
	"github.com/openharbor-io/beacon/internal/registry/model"
)

// Sentinel errors shared by every backend.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrUnavailable   = errors.New("storage backend unavailable")
)

// ServerRepository stores MCP server entries.
type ServerRepository interface {
	// LoadAll returns every server keyed by path.
	LoadAll(ctx context.Context) (map[string]model.Server, error)
	ListAll(ctx context.Context) ([]model.Server, error)
	Get(ctx context.Context, path string) (*model.Server, error)
	Create(ctx context.Context, s *model.Server) error
	Update(ctx context.Context, s *model.Server) error
	// Delete reports whether an entity was actually removed.
	Delete(ctx context.Context, path string) (bool, error)
	// SaveState flips the enabled flag; GetState reads it back. Both accept
	// trailing-slash path variants.
	SaveState(ctx context.Context, path string, enabled bool) error
	GetState(ctx context.Context, path string) (bool, error)
	// UpdateRating applies one user's vote and returns the updated entity.
	UpdateRating(ctx context.Context, path, username string, rating int) (*model.Server, error)
	// UpdateHealth records the latest probe outcome.
	UpdateHealth(ctx context.Context, path, status string, checkedAt time.Time) error
}

// AgentRepository stores A2A agent entries. It mirrors ServerRepository.
type AgentRepository interface {
	LoadAll(ctx context.Context) (map[string]model.Agent, error)
	ListAll(ctx context.Context) ([]model.Agent, error)
	Get(ctx context.Context, path string) (*model.Agent, error)
	Create(ctx context.Context, a *model.Agent) error
	Update(ctx context.Context, a *model.Agent) error
	Delete(ctx context.Context, path string) (bool, error)
	SaveState(ctx context.Context, path string, enabled bool) error
	GetState(ctx context.Context, path string) (bool, error)
	UpdateRating(ctx context.Context, path, username string, rating int) (*model.Agent, error)
	UpdateHealth(ctx context.Context, path, status string, checkedAt time.Time) error
}

// ScopeRepository stores authorization scopes.
type ScopeRepository interface {
	ListAll(ctx context.Context) ([]model.Scope, error)
	Get(ctx context.Context, name string) (*model.Scope, error)
	Create(ctx context.Context, s *model.Scope) error
	Update(ctx context.Context, s *model.Scope) error
	Delete(ctx context.Context, name string) (bool, error)
}

// SecurityScanRepository stores scan results, append-only per path.
type SecurityScanRepository interface {
	Append(ctx context.Context, result model.SecurityScanResult) error
	// Latest returns the most recent result by scan time, or ErrNotFound.
	Latest(ctx context.Context, path string) (*model.SecurityScanResult, error)
	History(ctx context.Context, path string) ([]model.SecurityScanResult, error)
}

// FederationConfigRepository stores upstream registry configurations.
type FederationConfigRepository interface {
	ListAll(ctx context.Context) ([]model.FederationConfig, error)
	Get(ctx context.Context, id string) (*model.FederationConfig, error)
	Create(ctx context.Context, c *model.FederationConfig) error
	Update(ctx context.Context, c *model.FederationConfig) error
	Delete(ctx context.Context, id string) (bool, error)
}

// SearchRepository stores search documents and answers vector queries.
// Query returns raw vector similarities; hybrid re-ranking happens in the
// search service so every backend ranks identically.
type SearchRepository interface {
	EnsureIndexes(ctx context.Context) error
	Index(ctx context.Context, doc model.SearchDocument) error
	Remove(ctx context.Context, path string, entityType model.EntityType) error
	Query(ctx context.Context, embedding []float32, types []model.EntityType, limit int) ([]model.ScoredDocument, error)
	Count(ctx context.Context) (int64, error)
}

// Backend bundles one coherent set of repositories plus their shared
// resources.
type Backend struct {
	Servers    ServerRepository
	Agents     AgentRepository
	Scopes     ScopeRepository
	Scans      SecurityScanRepository
	Federation FederationConfigRepository
	Search     SearchRepository

	closers []func(context.Context) error
}

// Close releases backend resources in reverse acquisition order.
func (b *Backend) Close(ctx context.Context) error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewBackend constructs the configured storage backend. The three document
// backends share one implementation; only the mongodb flavor issues native
// vector-search queries, the other two always rank client-side.
func NewBackend(ctx context.Context, cfg config.Settings, logger *zap.Logger) (*Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		return newFileBackend(cfg, logger)
	case config.BackendDocumentDB, config.BackendMongoCE:
		return newMongoBackend(ctx, cfg, logger, false)
	case config.BackendMongo:
		return newMongoBackend(ctx, cfg, logger, true)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
