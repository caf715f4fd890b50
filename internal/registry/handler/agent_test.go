package handler

import (
	"net/http"
	"testing"

	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/registry/model"
)

func seedAgents(t *testing.T, r *rig) {
	t.Helper()
	r.addAgent(t, model.Agent{
		Path: "/translator", Name: "Translator", Visibility: model.VisibilityPublic,
	})
	r.addAgent(t, model.Agent{
		Path: "/notes", Name: "Notes", Visibility: model.VisibilityPrivate, RegisteredBy: "alice",
	})
	r.addAgent(t, model.Agent{
		Path: "/deploys", Name: "Deploys", Visibility: model.VisibilityGroupRestricted,
		AllowedGroups: []string{"platform-eng"},
	})
}

func TestAgentList_appliesVisibility(t *testing.T) {
	r := newRig()
	seedAgents(t, r)

	cases := []struct {
		name     string
		identity auth.Context
		want     []string
	}{
		{"stranger sees public only", auth.Context{Username: "bob"}, []string{"/translator"}},
		{"owner sees own private", auth.Context{Username: "alice"}, []string{"/translator", "/notes"}},
		{"group member sees restricted", auth.Context{Username: "bob", Groups: []string{"platform-eng"}},
			[]string{"/translator", "/deploys"}},
		{"admin sees all", adminIdentity, []string{"/translator", "/notes", "/deploys"}},
	}
	for _, tc := range cases {
		w := doJSON(t, r.router(tc.identity), http.MethodGet, "/api/agents", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tc.name, w.Code)
		}
		resp := decode[struct {
			Agents []model.Agent `json:"agents"`
		}](t, w)
		got := map[string]bool{}
		for _, a := range resp.Agents {
			got[a.Path] = true
		}
		if len(got) != len(tc.want) {
			t.Errorf("%s: visible = %v, want %v", tc.name, got, tc.want)
			continue
		}
		for _, p := range tc.want {
			if !got[p] {
				t.Errorf("%s: missing %s in %v", tc.name, p, got)
			}
		}
	}
}

func TestAgentGet_visibilityAndProbing(t *testing.T) {
	r := newRig()
	seedAgents(t, r)

	// Private agent: owner yes, stranger no.
	if w := doJSON(t, r.router(auth.Context{Username: "alice"}), http.MethodGet, "/api/agents/notes", nil); w.Code != http.StatusOK {
		t.Errorf("owner get = %d, want 200", w.Code)
	}
	if w := doJSON(t, r.router(auth.Context{Username: "bob"}), http.MethodGet, "/api/agents/notes", nil); w.Code != http.StatusForbidden {
		t.Errorf("stranger get = %d, want 403", w.Code)
	}

	// Missing paths: 403 without a grant, 404 with one.
	if w := doJSON(t, r.router(auth.Context{Username: "bob"}), http.MethodGet, "/api/agents/ghost", nil); w.Code != http.StatusForbidden {
		t.Errorf("missing without grant = %d, want 403", w.Code)
	}
	granted := auth.Context{Username: "bob", AccessibleAgents: []string{"ghost"}}
	if w := doJSON(t, r.router(granted), http.MethodGet, "/api/agents/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing with grant = %d, want 404", w.Code)
	}
	if w := doJSON(t, r.router(adminIdentity), http.MethodGet, "/api/agents/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing as admin = %d, want 404", w.Code)
	}
}

func TestAgentCreate_recordsOwner(t *testing.T) {
	r := newRig()
	e := r.router(auth.Context{Username: "alice", AccessibleAgents: []string{model.AccessAll}})

	w := doJSON(t, e, http.MethodPost, "/api/agents", model.RegisterAgentRequest{
		Name: "Notes", Path: "/notes", Visibility: model.VisibilityPrivate,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	a := decode[model.Agent](t, w)
	if a.RegisteredBy != "alice" {
		t.Errorf("RegisteredBy = %q, want the caller", a.RegisteredBy)
	}
	if a.IsEnabled {
		t.Error("new agents must start disabled")
	}
}

func TestAgentActions(t *testing.T) {
	r := newRig()
	seedAgents(t, r)
	e := r.router(adminIdentity)

	w := doJSON(t, e, http.MethodPost, "/api/agents/translator/toggle", map[string]bool{"enabled": true})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d: %s", w.Code, w.Body.String())
	}
	if a := decode[model.Agent](t, w); !a.IsEnabled {
		t.Error("toggle did not enable")
	}

	w = doJSON(t, e, http.MethodPost, "/api/agents/translator/rate", map[string]int{"rating": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("rate status = %d: %s", w.Code, w.Body.String())
	}
	if a := decode[model.Agent](t, w); a.NumStars != 5 {
		t.Errorf("NumStars = %v", a.NumStars)
	}
}

func TestAgentDelete_requiresAccess(t *testing.T) {
	r := newRig()
	seedAgents(t, r)

	if w := doJSON(t, r.router(auth.Context{Username: "bob"}), http.MethodDelete, "/api/agents/notes", nil); w.Code != http.StatusForbidden {
		t.Errorf("stranger delete = %d, want 403", w.Code)
	}
	if w := doJSON(t, r.router(adminIdentity), http.MethodDelete, "/api/agents/notes", nil); w.Code != http.StatusNoContent {
		t.Errorf("admin delete = %d, want 204", w.Code)
	}
}
