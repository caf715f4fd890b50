// Package access implements scope-based authorization. A scope is a named
// permission bundle mapped to identity-provider groups; a caller holds the
// union of every scope any of its groups maps to. Administrators bypass all
// checks.
package access

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/registry/model"
)

// ErrDenied is returned by the enforcement helpers when the caller lacks
// access. Handlers translate it to 403 before any existence check runs, so
// unauthorized callers cannot probe for entities.
var ErrDenied = errors.New("access denied")

// scopeSource is the slice of the scope repository the resolver needs.
type scopeSource interface {
	ListAll(ctx context.Context) ([]model.Scope, error)
}

// Resolver answers authorization questions from an in-memory scope snapshot.
// The snapshot is loaded at startup and refreshed with Load; reads are cheap
// and lock-free beyond an RLock.
type Resolver struct {
	src    scopeSource
	logger *zap.Logger

	mu       sync.RWMutex
	byName   map[string]model.Scope
	byGroup  map[string][]string // group -> scope names
}

// NewResolver builds a Resolver; call Load before first use.
func NewResolver(src scopeSource, logger *zap.Logger) *Resolver {
	return &Resolver{
		src:     src,
		logger:  logger,
		byName:  map[string]model.Scope{},
		byGroup: map[string][]string{},
	}
}

// Load replaces the scope snapshot from the repository.
func (r *Resolver) Load(ctx context.Context) error {
	scopes, err := r.src.ListAll(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]model.Scope, len(scopes))
	byGroup := map[string][]string{}
	for _, s := range scopes {
		byName[s.Name] = s
		for _, g := range s.GroupMappings {
			byGroup[g] = append(byGroup[g], s.Name)
		}
	}

	r.mu.Lock()
	r.byName = byName
	r.byGroup = byGroup
	r.mu.Unlock()

	r.logger.Info("scopes loaded", zap.Int("count", len(scopes)))
	return nil
}

// EffectiveScopes is the union of the scopes granted by each of groups,
// sorted for stable output.
func (r *Resolver) EffectiveScopes(groups []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	for _, g := range groups {
		for _, name := range r.byGroup[g] {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Enrich expands the raw token context into the effective one: group-derived
// scopes are unioned with token scopes, per-scope server/agent grants are
// folded into the accessible lists, and admin status is recomputed.
func (r *Resolver) Enrich(c auth.Context) auth.Context {
	scopes := dedupe(append(r.EffectiveScopes(c.Groups), c.Scopes...))

	servers := append([]string(nil), c.AccessibleServers...)
	agents := append([]string(nil), c.AccessibleAgents...)
	isAdmin := c.IsAdmin

	r.mu.RLock()
	for _, name := range scopes {
		if name == model.AdminScope {
			isAdmin = true
		}
		s, ok := r.byName[name]
		if !ok {
			continue
		}
		for _, sa := range s.ServerAccess {
			servers = append(servers, sa.Server)
		}
		agents = append(agents, s.AgentAccess...)
	}
	r.mu.RUnlock()

	c.Scopes = scopes
	c.AccessibleServers = dedupe(servers)
	c.AccessibleAgents = dedupe(agents)
	c.IsAdmin = isAdmin
	return c
}

// CanAccessServerPath decides server access from the path alone, so it can
// run before the entity is fetched. Trailing-slash variants are equivalent.
func (r *Resolver) CanAccessServerPath(c auth.Context, path string) bool {
	if c.IsAdmin || contains(c.AccessibleServers, model.AccessAll) {
		return true
	}
	return contains(c.AccessibleServers, model.TechnicalName(path))
}

// CanAccessServer is the full server check, including the display-name
// grant that CanAccessServerPath cannot see.
func (r *Resolver) CanAccessServer(c auth.Context, s *model.Server) bool {
	if r.CanAccessServerPath(c, s.Path) {
		return true
	}
	return contains(c.AccessibleServers, s.ServerName)
}

// CanAccessAgent applies the agent visibility rules.
func (r *Resolver) CanAccessAgent(c auth.Context, a *model.Agent) bool {
	if c.IsAdmin || contains(c.AccessibleAgents, model.AccessAll) {
		return true
	}
	if contains(c.AccessibleAgents, model.TechnicalName(a.Path)) || contains(c.AccessibleAgents, a.Name) {
		return true
	}
	switch a.Visibility {
	case model.VisibilityPublic:
		return true
	case model.VisibilityPrivate:
		return a.RegisteredBy != "" && a.RegisteredBy == c.Username
	case model.VisibilityGroupRestricted:
		for _, g := range a.AllowedGroups {
			if c.HasGroup(g) {
				return true
			}
		}
	}
	return false
}

// FilterServers keeps only the servers the caller may see.
func (r *Resolver) FilterServers(c auth.Context, servers []model.Server) []model.Server {
	out := make([]model.Server, 0, len(servers))
	for i := range servers {
		if r.CanAccessServer(c, &servers[i]) {
			out = append(out, servers[i])
		}
	}
	return out
}

// FilterAgents keeps only the agents the caller may see.
func (r *Resolver) FilterAgents(c auth.Context, agents []model.Agent) []model.Agent {
	out := make([]model.Agent, 0, len(agents))
	for i := range agents {
		if r.CanAccessAgent(c, &agents[i]) {
			out = append(out, agents[i])
		}
	}
	return out
}

// UIPermissions unions the per-action permission maps across the caller's
// scopes. Administrators get the wildcard for every action seen in any scope.
func (r *Resolver) UIPermissions(c auth.Context) map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := map[string]map[string]bool{}
	addAction := func(action, server string) {
		if merged[action] == nil {
			merged[action] = map[string]bool{}
		}
		merged[action][server] = true
	}

	if c.IsAdmin {
		for _, s := range r.byName {
			for action := range s.UIPermissions {
				addAction(action, model.AccessAll)
			}
		}
	} else {
		for _, name := range c.Scopes {
			s, ok := r.byName[name]
			if !ok {
				continue
			}
			for action, servers := range s.UIPermissions {
				for _, sv := range servers {
					addAction(action, sv)
				}
			}
		}
	}

	out := make(map[string][]string, len(merged))
	for action, servers := range merged {
		if servers[model.AccessAll] {
			out[action] = []string{model.AccessAll}
			continue
		}
		list := make([]string, 0, len(servers))
		for sv := range servers {
			list = append(list, sv)
		}
		sort.Strings(list)
		out[action] = list
	}
	return out
}

func contains(list []string, want string) bool {
	want = strings.Trim(want, "/")
	for _, have := range list {
		if strings.Trim(have, "/") == want {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
