package federation

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	v0 "github.com/modelcontextprotocol/registry/pkg/api/v0"
	upstreammodel "github.com/modelcontextprotocol/registry/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
)

// upserter is the slice of the server service a sync needs.
type upserter interface {
	FederatedUpsert(ctx context.Context, srv *model.Server) (bool, error)
	EmitProxy(ctx context.Context)
}

// SyncRecordFunc is an optional callback recording per-item sync outcomes.
type SyncRecordFunc func(source, outcome string)

// Service owns upstream configs and runs syncs against them.
type Service struct {
	repo     repository.FederationConfigRepository
	servers  upserter
	onRecord SyncRecordFunc
	logger   *zap.Logger
}

// NewService wires a federation Service.
func NewService(repo repository.FederationConfigRepository, servers upserter, logger *zap.Logger) *Service {
	return &Service{repo: repo, servers: servers, logger: logger}
}

// SetSyncRecord configures the sync outcome recording callback.
func (s *Service) SetSyncRecord(fn SyncRecordFunc) {
	s.onRecord = fn
}

// ListConfigs returns every upstream config.
func (s *Service) ListConfigs(ctx context.Context) ([]model.FederationConfig, error) {
	return s.repo.ListAll(ctx)
}

// GetConfig returns one upstream config by ID.
func (s *Service) GetConfig(ctx context.Context, id string) (*model.FederationConfig, error) {
	return s.repo.Get(ctx, id)
}

// CreateConfig validates and stores a new upstream config, assigning an ID
// when the caller did not.
func (s *Service) CreateConfig(ctx context.Context, c *model.FederationConfig) error {
	if err := validateConfig(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	return s.repo.Create(ctx, c)
}

// UpdateConfig validates and replaces an existing upstream config.
func (s *Service) UpdateConfig(ctx context.Context, c *model.FederationConfig) error {
	if err := validateConfig(c); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

// DeleteConfig removes an upstream config. Imported servers stay behind;
// the next sync of another upstream will not resurrect them.
func (s *Service) DeleteConfig(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

func validateConfig(c *model.FederationConfig) error {
	if c.Name == "" {
		return &model.ErrValidation{Msg: "federation config requires a name"}
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &model.ErrValidation{Msg: "endpoint must be an absolute http(s) URL"}
	}
	return nil
}

// SyncAll syncs every enabled upstream and returns the per-source outcomes.
func (s *Service) SyncAll(ctx context.Context) ([]model.SyncOutcome, error) {
	configs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.SyncOutcome
	for i := range configs {
		if !configs[i].Enabled {
			continue
		}
		out = append(out, s.syncConfig(ctx, &configs[i]))
	}
	return out, nil
}

// SyncSource syncs one upstream, addressed by config ID or name.
func (s *Service) SyncSource(ctx context.Context, source string) (*model.SyncOutcome, error) {
	cfg, err := s.repo.Get(ctx, source)
	if err == repository.ErrNotFound {
		cfg, err = s.findByName(ctx, source)
	}
	if err != nil {
		return nil, err
	}
	outcome := s.syncConfig(ctx, cfg)
	return &outcome, nil
}

func (s *Service) findByName(ctx context.Context, name string) (*model.FederationConfig, error) {
	configs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].Name == name {
			return &configs[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

// syncConfig pulls each selected server from the upstream, upserts it, and
// records the outcome. Items fail independently: one broken upstream entry
// never aborts the rest of the sync.
func (s *Service) syncConfig(ctx context.Context, cfg *model.FederationConfig) model.SyncOutcome {
	outcome := model.SyncOutcome{Source: cfg.Name, SyncedAt: time.Now().UTC()}

	var token string
	if cfg.AuthEnvVar != "" {
		token = os.Getenv(cfg.AuthEnvVar)
		if token == "" {
			s.logger.Warn("federation auth env var is empty, syncing unauthenticated",
				zap.String("source", cfg.Name), zap.String("env", cfg.AuthEnvVar))
		}
	}
	client := newUpstreamClient(cfg.Endpoint, token)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range cfg.SelectedServers {
		name := name
		g.Go(func() error {
			created, err := s.syncItem(gctx, client, cfg.Name, name)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				outcome.Failed++
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", name, err))
				s.record(cfg.Name, "failed")
				s.logger.Warn("federation item failed",
					zap.String("source", cfg.Name), zap.String("server", name), zap.Error(err))
			case created:
				outcome.Created++
				s.record(cfg.Name, "created")
			default:
				outcome.Updated++
				s.record(cfg.Name, "updated")
			}
			return nil // item errors are isolated
		})
	}
	_ = g.Wait()

	if outcome.Failed < len(cfg.SelectedServers) {
		s.servers.EmitProxy(ctx)
	}

	now := outcome.SyncedAt
	cfg.LastSyncedAt = &now
	if err := s.repo.Update(ctx, cfg); err != nil {
		s.logger.Warn("recording sync time failed", zap.String("source", cfg.Name), zap.Error(err))
	}

	s.logger.Info("federation sync finished",
		zap.String("source", cfg.Name),
		zap.Int("created", outcome.Created),
		zap.Int("updated", outcome.Updated),
		zap.Int("failed", outcome.Failed))
	return outcome
}

func (s *Service) syncItem(ctx context.Context, client *upstreamClient, source, name string) (bool, error) {
	upstream, err := client.GetServer(ctx, name)
	if err != nil {
		return false, err
	}
	srv, err := transform(upstream, source)
	if err != nil {
		return false, err
	}
	return s.servers.FederatedUpsert(ctx, srv)
}

func (s *Service) record(source, outcome string) {
	if s.onRecord != nil {
		s.onRecord(source, outcome)
	}
}

// transform maps an upstream ServerJSON onto the local schema. The path is
// synthesized from the upstream name's final segment so re-syncs land on
// the same entry every time.
func transform(up *v0.ServerJSON, source string) (*model.Server, error) {
	if up.Name == "" {
		return nil, fmt.Errorf("upstream server has no name")
	}
	segment := up.Name
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	path := model.NormalizePath(model.Slugify(segment))
	if err := model.ValidatePath(path); err != nil {
		return nil, fmt.Errorf("cannot derive path from %q: %w", up.Name, err)
	}

	displayName := up.Title
	if displayName == "" {
		displayName = segment
	}

	srv := &model.Server{
		Path:        path,
		ServerName:  displayName,
		Description: up.Description,
		Version:     up.Version,
		Source:      source,
		IsReadOnly:  true,
	}
	if len(up.Remotes) > 0 {
		remote := up.Remotes[0]
		srv.ProxyPassURL = remote.URL
		srv.TransportType = mapTransport(remote.Type)
	} else {
		srv.TransportType = model.TransportStreamableHTTP
	}
	return srv, nil
}

func mapTransport(t string) model.TransportType {
	switch t {
	case string(upstreammodel.TransportTypeSSE):
		return model.TransportSSE
	case string(upstreammodel.TransportTypeStdio):
		return model.TransportStdio
	default:
		return model.TransportStreamableHTTP
	}
}
