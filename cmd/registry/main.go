package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/config"
	"github.com/openharbor-io/beacon/internal/embed"
	"github.com/openharbor-io/beacon/internal/federation"
	"github.com/openharbor-io/beacon/internal/health"
	"github.com/openharbor-io/beacon/internal/lifecycle"
	"github.com/openharbor-io/beacon/internal/proxy"
	"github.com/openharbor-io/beacon/internal/registry/handler"
	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
	"github.com/openharbor-io/beacon/internal/registry/service"
	"github.com/openharbor-io/beacon/internal/scanner"
	"github.com/openharbor-io/beacon/internal/search"
	"github.com/openharbor-io/beacon/internal/tasks"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("registry exited with error", zap.Error(err))
	}
}

// entitySource adapts the storage repositories to the health monitor.
type entitySource struct {
	servers repository.ServerRepository
	agents  repository.AgentRepository
}

func (s entitySource) ListServers(ctx context.Context) ([]model.Server, error) {
	return s.servers.ListAll(ctx)
}

func (s entitySource) ListAgents(ctx context.Context) ([]model.Agent, error) {
	return s.agents.ListAll(ctx)
}

func (s entitySource) UpdateServerHealth(ctx context.Context, path, status string, checkedAt time.Time) error {
	return s.servers.UpdateHealth(ctx, path, status, checkedAt)
}

func (s entitySource) UpdateAgentHealth(ctx context.Context, path, status string, checkedAt time.Time) error {
	return s.agents.UpdateHealth(ctx, path, status, checkedAt)
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStart()

	// ── Storage ──────────────────────────────────────────────────────────────
	backend, err := repository.NewBackend(startCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize storage backend: %w", err)
	}
	logger.Info("storage backend ready", zap.String("backend", cfg.StorageBackend))

	// ── Embeddings + search ──────────────────────────────────────────────────
	embedder, err := embed.New(startCtx, embed.Config{
		Provider:  cfg.EmbeddingsProvider,
		Model:     cfg.EmbeddingsModelName,
		Dimension: cfg.EmbeddingsDimensions,
		BaseURL:   cfg.EmbeddingsBaseURL,
		APIKey:    cfg.EffectiveEmbeddingsAPIKey(),
		AWSRegion: cfg.EmbeddingsAWSRegion,
	})
	if err != nil {
		return fmt.Errorf("initialize embeddings provider: %w", err)
	}
	searchSvc := search.NewService(backend.Search, embedder, cfg.SearchMaxPerType, logger)

	// ── Authorization ────────────────────────────────────────────────────────
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.AuthDevMode)
	resolver := access.NewResolver(backend.Scopes, logger)

	// ── Entity services ──────────────────────────────────────────────────────
	emitter := proxy.NewEmitter(cfg.ProxyConfigPath, cfg.ProxyReloadCommand, cfg.ProxyPIDFile, logger)
	serverSvc := service.NewServerService(backend.Servers, backend.Scans, searchSvc, emitter, logger)
	agentSvc := service.NewAgentService(backend.Agents, backend.Scans, searchSvc, logger)

	if cfg.ScanEnabled && cfg.ScanCommand != "" {
		scn := scanner.New(cfg.ScanCommand, cfg.ScanTimeout(), logger)
		scn.SetVerdictRecord(handler.RecordScanVerdict)
		serverSvc.SetScanner(scn, cfg.BlockUnsafeServers)
		if cfg.AgentScanEnabled {
			agentSvc.SetScanner(scn, cfg.BlockUnsafeAgents)
		}
		logger.Info("security admission scanning enabled",
			zap.String("command", cfg.ScanCommand),
			zap.Bool("block_unsafe_servers", cfg.BlockUnsafeServers),
			zap.Bool("block_unsafe_agents", cfg.AgentScanEnabled && cfg.BlockUnsafeAgents))
	}

	// ── Health monitor ───────────────────────────────────────────────────────
	monitor := health.NewMonitor(
		entitySource{servers: backend.Servers, agents: backend.Agents},
		health.Config{Interval: cfg.HealthInterval(), ProbeTimeout: cfg.HealthTimeout()},
		logger,
	)
	monitor.SetMetricsRecord(handler.RecordHealthCheck)

	// ── Federation ───────────────────────────────────────────────────────────
	fedSvc := federation.NewService(backend.Federation, serverSvc, logger)
	fedSvc.SetSyncRecord(handler.RecordFederationSync)

	// ── Lifecycle ────────────────────────────────────────────────────────────
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	taskMgr := tasks.NewManager(runCtx, logger)

	orch := lifecycle.New(backend, resolver, searchSvc, monitor, fedSvc, serverSvc, taskMgr, logger)
	if err := orch.Start(startCtx); err != nil {
		return fmt.Errorf("startup sequence: %w", err)
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.Dependencies{
		Settings:   cfg,
		Verifier:   verifier,
		Resolver:   resolver,
		Servers:    serverSvc,
		Agents:     agentSvc,
		Search:     searchSvc,
		Federation: fedSvc,
		Monitor:    monitor,
		Scans:      backend.Scans,
		Logger:     logger,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("registry listening", zap.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down registry...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	orch.Stop(shutdownCtx, 10*time.Second)
	return nil
}
