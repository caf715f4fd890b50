// Package health probes registered endpoints on an interval and caches the
// results. Probes only record status; they never disable an entity.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// StatusHealthy and the unhealthy prefix are the only states a probe can
// produce; anything else on an entity means it has never been probed.
const (
	StatusHealthy   = "healthy"
	unhealthyFormat = "unhealthy: %s"
)

// Config holds the monitor's timing knobs.
type Config struct {
	Interval     time.Duration // full-catalog probe period
	ProbeTimeout time.Duration // per-endpoint budget for on-demand checks
}

// EntitySource lists the endpoints to probe and records their status.
type EntitySource interface {
	ListServers(ctx context.Context) ([]model.Server, error)
	ListAgents(ctx context.Context) ([]model.Agent, error)
	UpdateServerHealth(ctx context.Context, path, status string, checkedAt time.Time) error
	UpdateAgentHealth(ctx context.Context, path, status string, checkedAt time.Time) error
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Status is one cached probe outcome.
type Status struct {
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
}

// Monitor probes enabled endpoints and caches {status, last_checked} per
// path for cheap reads.
type Monitor struct {
	source    EntitySource
	client    *http.Client
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]Status
}

// NewMonitor builds a Monitor, filling in defaults for unset knobs.
func NewMonitor(source EntitySource, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	return &Monitor{
		source: source,
		client: &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:    cfg,
		cache:  map[string]Status{},
		logger: logger,
	}
}

// SetMetricsRecord configures the probe-result recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// Run is the periodic probe loop; it exits when ctx is cancelled. An
// immediate first sweep warms the cache.
func (m *Monitor) Run(ctx context.Context) error {
	m.CheckAll(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CheckAll(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CheckAll probes every enabled endpoint with bounded concurrency.
func (m *Monitor) CheckAll(ctx context.Context) {
	servers, err := m.source.ListServers(ctx)
	if err != nil {
		m.logger.Error("health: list servers", zap.Error(err))
		servers = nil
	}
	agents, err := m.source.ListAgents(ctx)
	if err != nil {
		m.logger.Error("health: list agents", zap.Error(err))
		agents = nil
	}

	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup
	for _, s := range servers {
		if !s.IsEnabled || s.ProxyPassURL == "" {
			continue
		}
		wg.Add(1)
		go func(path, endpoint string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			m.probeAndRecord(ctx, path, endpoint, false)
		}(s.Path, s.ProxyPassURL)
	}
	for _, a := range agents {
		if !a.IsEnabled || a.URL == "" {
			continue
		}
		wg.Add(1)
		go func(path, endpoint string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			m.probeAndRecord(ctx, path, endpoint, true)
		}(a.Path, a.URL)
	}
	wg.Wait()
}

// CheckNow is the fast user-initiated path for a single entity: probe with
// the short timeout, record, and return the fresh status.
func (m *Monitor) CheckNow(ctx context.Context, path string) (Status, error) {
	path = model.NormalizePath(path)

	endpoint, isAgent, err := m.lookupEndpoint(ctx, path)
	if err != nil {
		return Status{}, err
	}
	return m.probeAndRecord(ctx, path, endpoint, isAgent), nil
}

func (m *Monitor) lookupEndpoint(ctx context.Context, path string) (endpoint string, isAgent bool, err error) {
	servers, err := m.source.ListServers(ctx)
	if err != nil {
		return "", false, err
	}
	for _, s := range servers {
		if s.Path == path {
			return s.ProxyPassURL, false, nil
		}
	}
	agents, err := m.source.ListAgents(ctx)
	if err != nil {
		return "", false, err
	}
	for _, a := range agents {
		if a.Path == path {
			return a.URL, true, nil
		}
	}
	return "", false, fmt.Errorf("no entity at %s", path)
}

// Cached returns the cached status for path, if any.
func (m *Monitor) Cached(path string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.cache[model.NormalizePath(path)]
	return st, ok
}

func (m *Monitor) probeAndRecord(ctx context.Context, path, endpoint string, isAgent bool) Status {
	ok, reason := m.probe(ctx, endpoint)
	if m.onMetrics != nil {
		m.onMetrics(ok)
	}

	status := StatusHealthy
	if !ok {
		status = fmt.Sprintf(unhealthyFormat, reason)
		m.logger.Warn("health: probe failed",
			zap.String("path", path), zap.String("endpoint", endpoint), zap.String("reason", reason))
	}

	now := time.Now().UTC()
	st := Status{Status: status, LastChecked: now}
	m.mu.Lock()
	m.cache[path] = st
	m.mu.Unlock()

	var err error
	if isAgent {
		err = m.source.UpdateAgentHealth(ctx, path, status, now)
	} else {
		err = m.source.UpdateServerHealth(ctx, path, status, now)
	}
	if err != nil {
		m.logger.Warn("health: record status", zap.String("path", path), zap.Error(err))
	}
	return st
}

// probe tries HEAD, then GET, accepting any 2xx or 3xx answer. MCP servers
// frequently reject HEAD; the GET fallback keeps them from reading as down.
func (m *Monitor) probe(ctx context.Context, endpoint string) (bool, string) {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return false, err.Error()
		}
		resp, err := m.client.Do(req)
		if err != nil {
			if method == http.MethodGet {
				return false, err.Error()
			}
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 400 {
			return true, ""
		}
		if method == http.MethodGet {
			return false, fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
	return false, "unreachable"
}
