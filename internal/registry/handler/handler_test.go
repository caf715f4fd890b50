package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
	"github.com/openharbor-io/beacon/internal/registry/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ── In-memory repositories ───────────────────────────────────────────────

type memServerRepo struct {
	servers map[string]*model.Server
	enabled map[string]bool
}

func newMemServerRepo() *memServerRepo {
	return &memServerRepo{servers: map[string]*model.Server{}, enabled: map[string]bool{}}
}

func (r *memServerRepo) LoadAll(ctx context.Context) (map[string]model.Server, error) {
	out := map[string]model.Server{}
	for p, s := range r.servers {
		cp := *s
		cp.IsEnabled = r.enabled[p]
		out[p] = cp
	}
	return out, nil
}

func (r *memServerRepo) ListAll(_ context.Context) ([]model.Server, error) {
	var out []model.Server
	for p, s := range r.servers {
		cp := *s
		cp.IsEnabled = r.enabled[p]
		out = append(out, cp)
	}
	return out, nil
}

func (r *memServerRepo) Get(_ context.Context, path string) (*model.Server, error) {
	s, ok := r.servers[path]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	cp.IsEnabled = r.enabled[path]
	return &cp, nil
}

func (r *memServerRepo) Create(_ context.Context, s *model.Server) error {
	if _, ok := r.servers[s.Path]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *s
	r.servers[s.Path] = &cp
	return nil
}

func (r *memServerRepo) Update(_ context.Context, s *model.Server) error {
	if _, ok := r.servers[s.Path]; !ok {
		return repository.ErrNotFound
	}
	cp := *s
	r.servers[s.Path] = &cp
	return nil
}

func (r *memServerRepo) Delete(_ context.Context, path string) (bool, error) {
	if _, ok := r.servers[path]; !ok {
		return false, nil
	}
	delete(r.servers, path)
	delete(r.enabled, path)
	return true, nil
}

func (r *memServerRepo) SaveState(_ context.Context, path string, enabled bool) error {
	if _, ok := r.servers[path]; !ok {
		return repository.ErrNotFound
	}
	r.enabled[path] = enabled
	return nil
}

func (r *memServerRepo) GetState(_ context.Context, path string) (bool, error) {
	return r.enabled[path], nil
}

func (r *memServerRepo) UpdateRating(_ context.Context, path, username string, rating int) (*model.Server, error) {
	s, ok := r.servers[path]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.ApplyRating(username, rating)
	cp := *s
	cp.IsEnabled = r.enabled[path]
	return &cp, nil
}

func (r *memServerRepo) UpdateHealth(_ context.Context, path, status string, checkedAt time.Time) error {
	s, ok := r.servers[path]
	if !ok {
		return repository.ErrNotFound
	}
	s.HealthStatus = status
	s.LastChecked = &checkedAt
	return nil
}

type memAgentRepo struct {
	agents  map[string]*model.Agent
	enabled map[string]bool
}

func newMemAgentRepo() *memAgentRepo {
	return &memAgentRepo{agents: map[string]*model.Agent{}, enabled: map[string]bool{}}
}

func (r *memAgentRepo) LoadAll(ctx context.Context) (map[string]model.Agent, error) {
	out := map[string]model.Agent{}
	for p, a := range r.agents {
		cp := *a
		cp.IsEnabled = r.enabled[p]
		out[p] = cp
	}
	return out, nil
}

func (r *memAgentRepo) ListAll(_ context.Context) ([]model.Agent, error) {
	var out []model.Agent
	for p, a := range r.agents {
		cp := *a
		cp.IsEnabled = r.enabled[p]
		out = append(out, cp)
	}
	return out, nil
}

func (r *memAgentRepo) Get(_ context.Context, path string) (*model.Agent, error) {
	a, ok := r.agents[path]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	cp.IsEnabled = r.enabled[path]
	return &cp, nil
}

func (r *memAgentRepo) Create(_ context.Context, a *model.Agent) error {
	if _, ok := r.agents[a.Path]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *a
	r.agents[a.Path] = &cp
	return nil
}

func (r *memAgentRepo) Update(_ context.Context, a *model.Agent) error {
	if _, ok := r.agents[a.Path]; !ok {
		return repository.ErrNotFound
	}
	cp := *a
	r.agents[a.Path] = &cp
	return nil
}

func (r *memAgentRepo) Delete(_ context.Context, path string) (bool, error) {
	if _, ok := r.agents[path]; !ok {
		return false, nil
	}
	delete(r.agents, path)
	delete(r.enabled, path)
	return true, nil
}

func (r *memAgentRepo) SaveState(_ context.Context, path string, enabled bool) error {
	if _, ok := r.agents[path]; !ok {
		return repository.ErrNotFound
	}
	r.enabled[path] = enabled
	return nil
}

func (r *memAgentRepo) GetState(_ context.Context, path string) (bool, error) {
	return r.enabled[path], nil
}

func (r *memAgentRepo) UpdateRating(_ context.Context, path, username string, rating int) (*model.Agent, error) {
	a, ok := r.agents[path]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.ApplyRating(username, rating)
	cp := *a
	cp.IsEnabled = r.enabled[path]
	return &cp, nil
}

func (r *memAgentRepo) UpdateHealth(_ context.Context, path, status string, checkedAt time.Time) error {
	a, ok := r.agents[path]
	if !ok {
		return repository.ErrNotFound
	}
	a.HealthStatus = status
	a.LastChecked = &checkedAt
	return nil
}

type memScanRepo struct {
	results []model.SecurityScanResult
}

func (r *memScanRepo) Append(_ context.Context, result model.SecurityScanResult) error {
	r.results = append(r.results, result)
	return nil
}

func (r *memScanRepo) Latest(_ context.Context, path string) (*model.SecurityScanResult, error) {
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].ServerPath == path {
			return &r.results[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memScanRepo) History(_ context.Context, path string) ([]model.SecurityScanResult, error) {
	var out []model.SecurityScanResult
	for _, res := range r.results {
		if res.ServerPath == path {
			out = append(out, res)
		}
	}
	return out, nil
}

type emptyScopeSource struct{}

func (emptyScopeSource) ListAll(_ context.Context) ([]model.Scope, error) { return nil, nil }

// ── Test rig ─────────────────────────────────────────────────────────────

// rig assembles real services over the in-memory repositories so handler
// tests exercise the full request path below the auth middleware.
type rig struct {
	serverRepo *memServerRepo
	agentRepo  *memAgentRepo
	scanRepo   *memScanRepo
	servers    *service.ServerService
	agents     *service.AgentService
	resolver   *access.Resolver
}

func newRig() *rig {
	logger := zap.NewNop()
	r := &rig{
		serverRepo: newMemServerRepo(),
		agentRepo:  newMemAgentRepo(),
		scanRepo:   &memScanRepo{},
	}
	r.servers = service.NewServerService(r.serverRepo, r.scanRepo, nil, nil, logger)
	r.agents = service.NewAgentService(r.agentRepo, r.scanRepo, nil, logger)
	r.resolver = access.NewResolver(emptyScopeSource{}, logger)
	return r
}

// router mounts the entity handlers behind a middleware that installs the
// given identity, standing in for the real bearer-token middleware.
func (r *rig) router(identity auth.Context) *gin.Engine {
	e := gin.New()
	e.Use(func(c *gin.Context) {
		auth.SetForTest(c, identity)
		c.Next()
	})
	api := e.Group("/api")
	logger := zap.NewNop()
	NewServerHandler(r.servers, r.resolver, logger).Register(api)
	NewAgentHandler(r.agents, r.resolver, logger).Register(api)
	return e
}

func (r *rig) addServer(t *testing.T, s model.Server) {
	t.Helper()
	enabled := s.IsEnabled
	if err := r.serverRepo.Create(context.Background(), &s); err != nil {
		t.Fatalf("seed server %s: %v", s.Path, err)
	}
	r.serverRepo.enabled[s.Path] = enabled
}

func (r *rig) addAgent(t *testing.T, a model.Agent) {
	t.Helper()
	enabled := a.IsEnabled
	if err := r.agentRepo.Create(context.Background(), &a); err != nil {
		t.Fatalf("seed agent %s: %v", a.Path, err)
	}
	r.agentRepo.enabled[a.Path] = enabled
}

func doJSON(t *testing.T, e *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

var adminIdentity = auth.Context{Username: "admin", IsAdmin: true}
