package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
	"github.com/openharbor-io/beacon/internal/registry/service"
)

// AgentHandler serves the /api/agents surface.
type AgentHandler struct {
	svc      *service.AgentService
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(svc *service.AgentService, resolver *access.Resolver, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{svc: svc, resolver: resolver, logger: logger}
}

// Register mounts the agent routes on rg.
func (h *AgentHandler) Register(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.GET("", h.List)
		agents.POST("", h.Create)
		agents.GET("/:seg1", h.Get)
		agents.GET("/:seg1/:seg2", h.Get)
		agents.PUT("/:seg1", h.Update)
		agents.PUT("/:seg1/:seg2", h.Update)
		agents.DELETE("/:seg1", h.Delete)
		agents.DELETE("/:seg1/:seg2", h.Delete)
		agents.POST("/:seg1/:seg2", h.Action)
		agents.POST("/:seg1/:seg2/:seg3", h.Action)
	}
}

// List handles GET /api/agents, filtered by visibility and scope.
func (h *AgentHandler) List(c *gin.Context) {
	authCtx := caller(c, h.resolver)
	agents, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	visible := h.resolver.FilterAgents(authCtx, agents)
	c.JSON(http.StatusOK, gin.H{"agents": visible, "count": len(visible)})
}

// Create handles POST /api/agents.
func (h *AgentHandler) Create(c *gin.Context) {
	var req model.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	authCtx := caller(c, h.resolver)
	req.Username = authCtx.Username

	agent, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// pathGrant reports whether the caller holds a grant that covers the agent
// path itself, without needing the entity. Used so that callers with no
// grant at all cannot probe which paths exist.
func pathGrant(authCtx auth.Context, path string) bool {
	if authCtx.IsAdmin {
		return true
	}
	for _, g := range authCtx.AccessibleAgents {
		if g == model.AccessAll || g == model.TechnicalName(path) {
			return true
		}
	}
	return false
}

func (h *AgentHandler) fetch(c *gin.Context, path string) (*model.Agent, bool) {
	authCtx := caller(c, h.resolver)
	agent, err := h.svc.Get(c.Request.Context(), path)
	if errors.Is(err, repository.ErrNotFound) {
		if !pathGrant(authCtx, path) {
			denied(c)
			return nil, false
		}
		writeError(c, h.logger, err)
		return nil, false
	}
	if err != nil {
		writeError(c, h.logger, err)
		return nil, false
	}
	if !h.resolver.CanAccessAgent(authCtx, agent) {
		denied(c)
		return nil, false
	}
	return agent, true
}

// Get handles GET /api/agents/{path}.
func (h *AgentHandler) Get(c *gin.Context) {
	path, _ := entityPath(c, false)
	agent, ok := h.fetch(c, path)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Update handles PUT /api/agents/{path}.
func (h *AgentHandler) Update(c *gin.Context) {
	path, _ := entityPath(c, false)
	if _, ok := h.fetch(c, path); !ok {
		return
	}
	var req model.UpdateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	agent, err := h.svc.Update(c.Request.Context(), path, &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Delete handles DELETE /api/agents/{path}.
func (h *AgentHandler) Delete(c *gin.Context) {
	path, _ := entityPath(c, false)
	if _, ok := h.fetch(c, path); !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), path); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Action dispatches POST /api/agents/{path}/{toggle|rate}.
func (h *AgentHandler) Action(c *gin.Context) {
	path, action := entityPath(c, true)
	switch action {
	case "toggle":
		h.toggle(c, path)
	case "rate":
		h.rate(c, path)
	default:
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "unknown action " + action})
	}
}

func (h *AgentHandler) toggle(c *gin.Context, path string) {
	if _, ok := h.fetch(c, path); !ok {
		return
	}
	var req model.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	agent, err := h.svc.Toggle(c.Request.Context(), path, *req.Enabled)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *AgentHandler) rate(c *gin.Context, path string) {
	if _, ok := h.fetch(c, path); !ok {
		return
	}
	var req model.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	authCtx := caller(c, h.resolver)
	agent, err := h.svc.Rate(c.Request.Context(), path, authCtx.Username, req.Rating)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}
