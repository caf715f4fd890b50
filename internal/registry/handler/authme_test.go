package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/registry/model"
)

func TestAuthMe_reportsEffectiveGrants(t *testing.T) {
	r := newRig()
	e := gin.New()
	e.Use(func(c *gin.Context) {
		auth.SetForTest(c, auth.Context{
			Username:          "alice",
			Groups:            []string{"platform-eng"},
			AccessibleServers: []string{"fetch"},
		})
		c.Next()
	})
	api := e.Group("/api")
	NewAuthHandler(r.resolver).Register(api)

	w := doJSON(t, e, http.MethodGet, "/api/auth/me", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Username          string   `json:"username"`
		IsAdmin           bool     `json:"is_admin"`
		AccessibleServers []string `json:"accessible_servers"`
	}](t, w)
	if resp.Username != "alice" || resp.IsAdmin {
		t.Errorf("identity = %+v", resp)
	}
	if len(resp.AccessibleServers) != 1 || resp.AccessibleServers[0] != "fetch" {
		t.Errorf("accessible_servers = %v", resp.AccessibleServers)
	}
}

func scanRouter(r *rig, identity auth.Context) *gin.Engine {
	e := gin.New()
	e.Use(func(c *gin.Context) {
		auth.SetForTest(c, identity)
		c.Next()
	})
	api := e.Group("/api")
	NewScanHandler(r.scanRepo, r.resolver, zap.NewNop()).Register(api)
	return e
}

func TestScans_adminOnly(t *testing.T) {
	r := newRig()
	if err := r.scanRepo.Append(context.Background(), model.SecurityScanResult{
		ServerPath: "/fetch",
		ScannedAt:  time.Now().UTC(),
		IsSafe:     true,
	}); err != nil {
		t.Fatalf("seed scan: %v", err)
	}

	e := scanRouter(r, auth.Context{Username: "bob", AccessibleServers: []string{"fetch"}})
	if w := doJSON(t, e, http.MethodGet, "/api/scans/fetch", nil); w.Code != http.StatusForbidden {
		t.Errorf("non-admin = %d, want 403", w.Code)
	}

	e = scanRouter(r, adminIdentity)
	w := doJSON(t, e, http.MethodGet, "/api/scans/fetch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Path    string                     `json:"path"`
		Latest  *model.SecurityScanResult  `json:"latest"`
		History []model.SecurityScanResult `json:"history"`
	}](t, w)
	if resp.Path != "/fetch" || resp.Latest == nil || !resp.Latest.IsSafe || len(resp.History) != 1 {
		t.Errorf("report = %+v", resp)
	}

	if w := doJSON(t, e, http.MethodGet, "/api/scans/never-scanned", nil); w.Code != http.StatusNotFound {
		t.Errorf("unscanned = %d, want 404", w.Code)
	}
}
