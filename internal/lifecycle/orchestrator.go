// Package lifecycle choreographs startup and shutdown: scope loading with
// backoff, catalog loading, search-index warmup, the health loop,
// startup federation syncs, and the first proxy emission.
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/health"
	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
	"github.com/openharbor-io/beacon/internal/search"
	"github.com/openharbor-io/beacon/internal/tasks"
)

// federationSyncer is the slice of the federation service startup needs.
type federationSyncer interface {
	ListConfigs(ctx context.Context) ([]model.FederationConfig, error)
	SyncSource(ctx context.Context, source string) (*model.SyncOutcome, error)
}

// proxyEmitter triggers the first reverse-proxy config write.
type proxyEmitter interface {
	EmitProxy(ctx context.Context)
}

// Orchestrator runs the ordered startup sequence and the bounded shutdown.
type Orchestrator struct {
	backend    *repository.Backend
	resolver   *access.Resolver
	search     *search.Service
	monitor    *health.Monitor
	federation federationSyncer
	servers    proxyEmitter
	tasks      *tasks.Manager
	logger     *zap.Logger
}

// New wires an Orchestrator.
func New(backend *repository.Backend, resolver *access.Resolver, searchSvc *search.Service, monitor *health.Monitor, federation federationSyncer, servers proxyEmitter, taskMgr *tasks.Manager, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		backend:    backend,
		resolver:   resolver,
		search:     searchSvc,
		monitor:    monitor,
		federation: federation,
		servers:    servers,
		tasks:      taskMgr,
		logger:     logger,
	}
}

// Start runs the startup sequence in order. Per-entity warmup failures and
// federation item failures are logged, never fatal; a backend that stays
// unreachable through the scope-load retries is.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.loadScopes(ctx); err != nil {
		return err
	}

	servers, err := o.backend.Servers.LoadAll(ctx)
	if err != nil {
		return err
	}
	agents, err := o.backend.Agents.LoadAll(ctx)
	if err != nil {
		return err
	}
	o.logger.Info("catalog loaded",
		zap.Int("servers", len(servers)), zap.Int("agents", len(agents)))

	if err := o.backend.Search.EnsureIndexes(ctx); err != nil {
		// The query path degrades by itself; a missing index is not fatal.
		o.logger.Warn("ensuring search indexes failed", zap.Error(err))
	}
	o.warmIndex(ctx, servers, agents)

	if err := o.tasks.Go("health-monitor", o.monitor.Run); err != nil {
		return err
	}

	o.startupSync(ctx)
	o.servers.EmitProxy(ctx)

	o.logger.Info("startup complete")
	return nil
}

// loadScopes retries with exponential backoff so a registry booting
// alongside its database comes up without operator help.
func (o *Orchestrator) loadScopes(ctx context.Context) error {
	const attempts = 5
	delay := 2 * time.Second

	var err error
	for i := 1; i <= attempts; i++ {
		if err = o.resolver.Load(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		o.logger.Warn("loading scopes failed, retrying",
			zap.Int("attempt", i), zap.Duration("next_in", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

// warmIndex re-embeds and re-indexes the whole catalog with bounded
// concurrency so search is live before the first request.
func (o *Orchestrator) warmIndex(ctx context.Context, servers map[string]model.Server, agents map[string]model.Agent) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for path := range servers {
		srv := servers[path]
		g.Go(func() error {
			if err := o.search.IndexServer(gctx, &srv); err != nil {
				o.logger.Warn("index warmup: server", zap.String("path", srv.Path), zap.Error(err))
			}
			return nil
		})
	}
	for path := range agents {
		a := agents[path]
		g.Go(func() error {
			if err := o.search.IndexAgent(gctx, &a); err != nil {
				o.logger.Warn("index warmup: agent", zap.String("path", a.Path), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	o.logger.Info("search index warmed",
		zap.Int("entities", len(servers)+len(agents)))
}

// startupSync runs every upstream marked sync_on_startup.
func (o *Orchestrator) startupSync(ctx context.Context) {
	configs, err := o.federation.ListConfigs(ctx)
	if err != nil {
		o.logger.Warn("loading federation configs failed", zap.Error(err))
		return
	}
	for _, cfg := range configs {
		if !cfg.Enabled || !cfg.SyncOnStartup {
			continue
		}
		if _, err := o.federation.SyncSource(ctx, cfg.ID); err != nil {
			o.logger.Warn("startup federation sync failed",
				zap.String("source", cfg.Name), zap.Error(err))
		}
	}
}

// Stop shuts the background tasks down within timeout, then releases the
// storage clients.
func (o *Orchestrator) Stop(ctx context.Context, timeout time.Duration) {
	if err := o.tasks.Shutdown(timeout); err != nil {
		o.logger.Warn("task shutdown incomplete", zap.Error(err))
	}
	if err := o.backend.Close(ctx); err != nil {
		o.logger.Warn("closing storage backend failed", zap.Error(err))
	}
	o.logger.Info("shutdown complete")
}
