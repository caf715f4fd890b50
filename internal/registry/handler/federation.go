package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/federation"
	"github.com/openharbor-io/beacon/internal/registry/model"
)

// FederationHandler serves the /api/federation surface. Every route is
// admin-only: federation rewrites the catalog.
type FederationHandler struct {
	svc      *federation.Service
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewFederationHandler creates a FederationHandler.
func NewFederationHandler(svc *federation.Service, resolver *access.Resolver, logger *zap.Logger) *FederationHandler {
	return &FederationHandler{svc: svc, resolver: resolver, logger: logger}
}

// Register mounts the federation routes on rg.
func (h *FederationHandler) Register(rg *gin.RouterGroup) {
	fed := rg.Group("/federation", h.adminOnly)
	{
		fed.GET("/config", h.List)
		fed.POST("/config", h.Create)
		fed.GET("/config/:id", h.Get)
		fed.PUT("/config/:id", h.Update)
		fed.DELETE("/config/:id", h.Delete)
		fed.POST("/sync", h.Sync)
	}
}

func (h *FederationHandler) adminOnly(c *gin.Context) {
	if !caller(c, h.resolver).IsAdmin {
		denied(c)
		c.Abort()
		return
	}
	c.Next()
}

// List handles GET /api/federation/config.
func (h *FederationHandler) List(c *gin.Context) {
	configs, err := h.svc.ListConfigs(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": configs, "count": len(configs)})
}

// Create handles POST /api/federation/config.
func (h *FederationHandler) Create(c *gin.Context) {
	var cfg model.FederationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.CreateConfig(c.Request.Context(), &cfg); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// Get handles GET /api/federation/config/{id}.
func (h *FederationHandler) Get(c *gin.Context) {
	cfg, err := h.svc.GetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Update handles PUT /api/federation/config/{id}.
func (h *FederationHandler) Update(c *gin.Context) {
	var cfg model.FederationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	cfg.ID = c.Param("id")
	if err := h.svc.UpdateConfig(c.Request.Context(), &cfg); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Delete handles DELETE /api/federation/config/{id}.
func (h *FederationHandler) Delete(c *gin.Context) {
	removed, err := h.svc.DeleteConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "entity not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Sync handles POST /api/federation/sync. With ?source= it syncs one
// upstream (by ID or name); otherwise every enabled upstream.
func (h *FederationHandler) Sync(c *gin.Context) {
	ctx := c.Request.Context()
	if source := c.Query("source"); source != "" {
		outcome, err := h.svc.SyncSource(ctx, source)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": []model.SyncOutcome{*outcome}})
		return
	}
	outcomes, err := h.svc.SyncAll(ctx)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}
