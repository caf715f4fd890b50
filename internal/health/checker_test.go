package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubSource struct {
	servers []model.Server
	agents  []model.Agent

	serverStatus map[string]string
	agentStatus  map[string]string
}

func newStubSource() *stubSource {
	return &stubSource{
		serverStatus: map[string]string{},
		agentStatus:  map[string]string{},
	}
}

func (s *stubSource) ListServers(_ context.Context) ([]model.Server, error) {
	return s.servers, nil
}

func (s *stubSource) ListAgents(_ context.Context) ([]model.Agent, error) {
	return s.agents, nil
}

func (s *stubSource) UpdateServerHealth(_ context.Context, path, status string, _ time.Time) error {
	s.serverStatus[path] = status
	return nil
}

func (s *stubSource) UpdateAgentHealth(_ context.Context, path, status string, _ time.Time) error {
	s.agentStatus[path] = status
	return nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestProbe_acceptsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(newStubSource(), Config{}, zap.NewNop())
	ok, reason := m.probe(context.Background(), srv.URL)
	if !ok {
		t.Errorf("expected probe to succeed, got reason %q", reason)
	}
}

func TestProbe_fallsBackToGET(t *testing.T) {
	// Reject HEAD the way many MCP servers do; GET succeeds.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(newStubSource(), Config{}, zap.NewNop())
	ok, reason := m.probe(context.Background(), srv.URL)
	if !ok {
		t.Errorf("expected GET fallback to succeed, got reason %q", reason)
	}
}

func TestProbe_reportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewMonitor(newStubSource(), Config{}, zap.NewNop())
	ok, reason := m.probe(context.Background(), srv.URL)
	if ok {
		t.Fatal("expected probe to fail")
	}
	if reason != "status 500" {
		t.Errorf("reason = %q, want status 500", reason)
	}
}

func TestCheckAll_recordsStatusAndSkipsDisabled(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	source := newStubSource()
	source.servers = []model.Server{
		{Path: "/fetch", ProxyPassURL: up.URL, IsEnabled: true},
		{Path: "/broken", ProxyPassURL: down.URL, IsEnabled: true},
		{Path: "/dormant", ProxyPassURL: up.URL, IsEnabled: false},
	}
	source.agents = []model.Agent{
		{Path: "/translator", URL: up.URL, IsEnabled: true},
	}

	m := NewMonitor(source, Config{}, zap.NewNop())
	m.CheckAll(context.Background())

	if source.serverStatus["/fetch"] != StatusHealthy {
		t.Errorf("/fetch status = %q", source.serverStatus["/fetch"])
	}
	if !strings.HasPrefix(source.serverStatus["/broken"], "unhealthy:") {
		t.Errorf("/broken status = %q, want unhealthy prefix", source.serverStatus["/broken"])
	}
	if _, probed := source.serverStatus["/dormant"]; probed {
		t.Error("disabled server should not be probed")
	}
	if source.agentStatus["/translator"] != StatusHealthy {
		t.Errorf("/translator status = %q", source.agentStatus["/translator"])
	}

	if st, ok := m.Cached("/fetch"); !ok || st.Status != StatusHealthy {
		t.Errorf("Cached(/fetch) = %+v, %t", st, ok)
	}
}

func TestCheckNow_probesOneEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	source := newStubSource()
	source.agents = []model.Agent{{Path: "/translator", URL: srv.URL, IsEnabled: true}}

	m := NewMonitor(source, Config{}, zap.NewNop())
	st, err := m.CheckNow(context.Background(), "translator/")
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if st.Status != StatusHealthy {
		t.Errorf("status = %q", st.Status)
	}
	if st.LastChecked.IsZero() {
		t.Error("LastChecked not set")
	}
	if source.agentStatus["/translator"] != StatusHealthy {
		t.Errorf("agent status not recorded: %q", source.agentStatus["/translator"])
	}
}

func TestCheckNow_unknownPath(t *testing.T) {
	m := NewMonitor(newStubSource(), Config{}, zap.NewNop())
	if _, err := m.CheckNow(context.Background(), "/ghost"); err == nil {
		t.Error("expected error for unknown path")
	}
}

func TestCheckAll_recordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	source := newStubSource()
	source.servers = []model.Server{{Path: "/fetch", ProxyPassURL: srv.URL, IsEnabled: true}}

	m := NewMonitor(source, Config{}, zap.NewNop())
	var successes int
	m.SetMetricsRecord(func(success bool) {
		if success {
			successes++
		}
	})
	m.CheckAll(context.Background())

	if successes != 1 {
		t.Errorf("recorded %d successes, want 1", successes)
	}
}
