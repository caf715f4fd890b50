// Package auth adapts bearer tokens into the per-request identity contract
// consumed by the rest of the registry: username, groups, scopes, accessible
// entities, and the admin flag. Tokens are only ever validated here, never
// minted.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Context is the caller identity attached to every authenticated request.
type Context struct {
	Username          string
	Groups            []string
	Scopes            []string
	AccessibleServers []string
	AccessibleAgents  []string
	IsAdmin           bool
}

// HasGroup reports whether the caller belongs to group g.
func (c Context) HasGroup(g string) bool {
	for _, have := range c.Groups {
		if have == g {
			return true
		}
	}
	return false
}

// Claims is the expected token payload. Identity providers that put the
// username in the subject claim are accommodated by the Subject fallback.
type Claims struct {
	jwt.RegisteredClaims
	Username          string   `json:"username"`
	Groups            []string `json:"groups"`
	Scopes            []string `json:"scopes"`
	AccessibleServers []string `json:"accessible_servers"`
	AccessibleAgents  []string `json:"accessible_agents"`
	IsAdmin           bool     `json:"is_admin"`
}

// Verifier validates raw bearer tokens into a Context.
type Verifier struct {
	secret  []byte
	devMode bool
}

// NewVerifier builds a Verifier. With devMode set, signatures are not
// checked; claims are still parsed. Never enable devMode outside local
// development.
func NewVerifier(secret string, devMode bool) *Verifier {
	return &Verifier{secret: []byte(secret), devMode: devMode}
}

// Verify parses and validates tokenStr, returning the caller context.
func (v *Verifier) Verify(tokenStr string) (Context, error) {
	claims := &Claims{}
	if v.devMode {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return Context{}, fmt.Errorf("parse token: %w", err)
		}
		return claims.toContext(), nil
	}

	_, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Context{}, fmt.Errorf("verify token: %w", err)
	}
	return claims.toContext(), nil
}

func (c *Claims) toContext() Context {
	username := c.Username
	if username == "" {
		username = c.Subject
	}
	return Context{
		Username:          username,
		Groups:            c.Groups,
		Scopes:            c.Scopes,
		AccessibleServers: c.AccessibleServers,
		AccessibleAgents:  c.AccessibleAgents,
		IsAdmin:           c.IsAdmin,
	}
}
