package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/federation"
	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
)

type memFedRepo struct {
	configs map[string]*model.FederationConfig
}

func newMemFedRepo() *memFedRepo {
	return &memFedRepo{configs: map[string]*model.FederationConfig{}}
}

func (r *memFedRepo) ListAll(_ context.Context) ([]model.FederationConfig, error) {
	var out []model.FederationConfig
	for _, c := range r.configs {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memFedRepo) Get(_ context.Context, id string) (*model.FederationConfig, error) {
	c, ok := r.configs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memFedRepo) Create(_ context.Context, c *model.FederationConfig) error {
	if _, ok := r.configs[c.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *c
	r.configs[c.ID] = &cp
	return nil
}

func (r *memFedRepo) Update(_ context.Context, c *model.FederationConfig) error {
	if _, ok := r.configs[c.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *c
	r.configs[c.ID] = &cp
	return nil
}

func (r *memFedRepo) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := r.configs[id]; !ok {
		return false, nil
	}
	delete(r.configs, id)
	return true, nil
}

func federationRouter(r *rig, repo *memFedRepo, identity auth.Context) *gin.Engine {
	logger := zap.NewNop()
	svc := federation.NewService(repo, r.servers, logger)
	e := gin.New()
	e.Use(func(c *gin.Context) {
		auth.SetForTest(c, identity)
		c.Next()
	})
	api := e.Group("/api")
	NewFederationHandler(svc, r.resolver, logger).Register(api)
	return e
}

func TestFederation_adminGate(t *testing.T) {
	r := newRig()
	repo := newMemFedRepo()

	e := federationRouter(r, repo, auth.Context{Username: "bob", AccessibleServers: []string{model.AccessAll}})
	for _, probe := range []struct{ method, target string }{
		{http.MethodGet, "/api/federation/config"},
		{http.MethodPost, "/api/federation/sync"},
		{http.MethodDelete, "/api/federation/config/x"},
	} {
		if w := doJSON(t, e, probe.method, probe.target, nil); w.Code != http.StatusForbidden {
			t.Errorf("%s %s as non-admin = %d, want 403", probe.method, probe.target, w.Code)
		}
	}
}

func TestFederation_configLifecycle(t *testing.T) {
	r := newRig()
	repo := newMemFedRepo()
	e := federationRouter(r, repo, adminIdentity)

	w := doJSON(t, e, http.MethodPost, "/api/federation/config", model.FederationConfig{
		Name:     "upstream",
		Endpoint: "https://registry.example.com",
		Enabled:  true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	created := decode[model.FederationConfig](t, w)
	if created.ID == "" {
		t.Fatal("create did not assign an ID")
	}

	w = doJSON(t, e, http.MethodGet, "/api/federation/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	list := decode[struct {
		Sources []model.FederationConfig `json:"sources"`
		Count   int                      `json:"count"`
	}](t, w)
	if list.Count != 1 || len(list.Sources) != 1 {
		t.Errorf("list = %+v", list)
	}

	w = doJSON(t, e, http.MethodPut, "/api/federation/config/"+created.ID, model.FederationConfig{
		Name:     "upstream",
		Endpoint: "https://registry.example.com",
		Enabled:  false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, e, http.MethodDelete, "/api/federation/config/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := doJSON(t, e, http.MethodDelete, "/api/federation/config/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}

	// Invalid configs are rejected before they reach storage.
	w = doJSON(t, e, http.MethodPost, "/api/federation/config", model.FederationConfig{Name: "bad", Endpoint: "not-a-url"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid endpoint = %d, want 400", w.Code)
	}
}

func TestFederation_syncEmptyCatalog(t *testing.T) {
	r := newRig()
	repo := newMemFedRepo()
	e := federationRouter(r, repo, adminIdentity)

	// No configured sources: sync succeeds with no outcomes.
	w := doJSON(t, e, http.MethodPost, "/api/federation/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Outcomes []model.SyncOutcome `json:"outcomes"`
	}](t, w)
	if len(resp.Outcomes) != 0 {
		t.Errorf("outcomes = %+v, want none", resp.Outcomes)
	}

	if w := doJSON(t, e, http.MethodPost, "/api/federation/sync?source=ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown source sync = %d, want 404", w.Code)
	}
}
