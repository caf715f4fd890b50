package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/health"
)

// HealthHandler serves liveness plus per-entity health probes.
type HealthHandler struct {
	monitor  *health.Monitor
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(monitor *health.Monitor, resolver *access.Resolver, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{monitor: monitor, resolver: resolver, logger: logger}
}

// RegisterPublic mounts the unauthenticated liveness route.
func (h *HealthHandler) RegisterPublic(r gin.IRoutes) {
	r.GET("/healthz", h.Liveness)
}

// Register mounts the authenticated probe routes on rg.
func (h *HealthHandler) Register(rg *gin.RouterGroup) {
	hg := rg.Group("/health")
	{
		hg.GET("/:seg1", h.Check)
		hg.GET("/:seg1/:seg2", h.Check)
	}
}

// Liveness handles GET /healthz. It reports process liveness only and never
// touches the backend.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "beacon-registry"})
}

// Check handles GET /api/health/{path}: an on-demand probe that refreshes
// the cached status for the entity.
func (h *HealthHandler) Check(c *gin.Context) {
	path, _ := entityPath(c, false)
	authCtx := caller(c, h.resolver)
	if !h.resolver.CanAccessServerPath(authCtx, path) {
		denied(c)
		return
	}
	st, err := h.monitor.CheckNow(c.Request.Context(), path)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":         path,
		"status":       st.Status,
		"last_checked": st.LastChecked,
	})
}
