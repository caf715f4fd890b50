package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openharbor-io/beacon/internal/access"
)

// AuthHandler exposes the caller's own identity and effective grants, which
// the UI uses to decide what to render.
type AuthHandler struct {
	resolver *access.Resolver
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(resolver *access.Resolver) *AuthHandler {
	return &AuthHandler{resolver: resolver}
}

// Register mounts the auth routes on rg.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/auth/me", h.Me)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	authCtx := caller(c, h.resolver)
	c.JSON(http.StatusOK, gin.H{
		"username":           authCtx.Username,
		"groups":             authCtx.Groups,
		"scopes":             authCtx.Scopes,
		"is_admin":           authCtx.IsAdmin,
		"accessible_servers": authCtx.AccessibleServers,
		"accessible_agents":  authCtx.AccessibleAgents,
		"ui_permissions":     h.resolver.UIPermissions(authCtx),
	})
}
