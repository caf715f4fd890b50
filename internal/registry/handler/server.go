package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/repository"
	"github.com/openharbor-io/beacon/internal/registry/service"
)

// Entity paths are one or two segments, so routes use explicit :seg params
// instead of a catch-all; POST actions (toggle, rate) ride as the final
// segment.

// entityPath rebuilds the routing path from the one- or two-segment params.
func entityPath(c *gin.Context, withAction bool) (path, action string) {
	a, b, d := c.Param("seg1"), c.Param("seg2"), c.Param("seg3")
	switch {
	case !withAction:
		path = "/" + a
		if b != "" {
			path += "/" + b
		}
	case d != "":
		path, action = "/"+a+"/"+b, d
	default:
		path, action = "/"+a, b
	}
	return path, action
}

// ServerHandler serves the /api/servers surface.
type ServerHandler struct {
	svc      *service.ServerService
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewServerHandler creates a ServerHandler.
func NewServerHandler(svc *service.ServerService, resolver *access.Resolver, logger *zap.Logger) *ServerHandler {
	return &ServerHandler{svc: svc, resolver: resolver, logger: logger}
}

// Register mounts the server routes on rg.
func (h *ServerHandler) Register(rg *gin.RouterGroup) {
	servers := rg.Group("/servers")
	{
		servers.GET("", h.List)
		servers.POST("", h.Create)
		servers.GET("/:seg1", h.Get)
		servers.GET("/:seg1/:seg2", h.Get)
		servers.PUT("/:seg1", h.Update)
		servers.PUT("/:seg1/:seg2", h.Update)
		servers.DELETE("/:seg1", h.Delete)
		servers.DELETE("/:seg1/:seg2", h.Delete)
		servers.POST("/:seg1/:seg2", h.Action)
		servers.POST("/:seg1/:seg2/:seg3", h.Action)
	}
}

// List handles GET /api/servers, filtered to what the caller may see.
func (h *ServerHandler) List(c *gin.Context) {
	authCtx := caller(c, h.resolver)
	servers, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	visible := h.resolver.FilterServers(authCtx, servers)
	c.JSON(http.StatusOK, gin.H{"servers": visible, "count": len(visible)})
}

// Create handles POST /api/servers.
func (h *ServerHandler) Create(c *gin.Context) {
	var req model.RegisterServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	authCtx := caller(c, h.resolver)
	req.Username = authCtx.Username

	srv, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, srv)
}

// fetch loads a server applying the scope-before-existence rule: callers
// without a grant on the path get 403 whether or not the entity exists.
func (h *ServerHandler) fetch(c *gin.Context, path string) (*model.Server, bool) {
	authCtx := caller(c, h.resolver)
	srv, err := h.svc.Get(c.Request.Context(), path)
	if errors.Is(err, repository.ErrNotFound) {
		if !h.resolver.CanAccessServerPath(authCtx, path) {
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
	if !h.resolver.CanAccessServer(authCtx, srv) {
		denied(c)
		return nil, false
	}
	return srv, true
}

// Get handles GET /api/servers/{path}.
func (h *ServerHandler) Get(c *gin.Context) {
	path, _ := entityPath(c, false)
	srv, ok := h.fetch(c, path)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, srv)
}

// Update handles PUT /api/servers/{path}.
func (h *ServerHandler) Update(c *gin.Context) {
	path, _ := entityPath(c, false)
	if _, ok := h.fetch(c, path); !ok {
		return
	}
	var req model.UpdateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	srv, err := h.svc.Update(c.Request.Context(), path, &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, srv)
}

// Delete handles DELETE /api/servers/{path}.
func (h *ServerHandler) Delete(c *gin.Context) {
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

// Action dispatches POST /api/servers/{path}/{toggle|rate}.
func (h *ServerHandler) Action(c *gin.Context) {
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

func (h *ServerHandler) toggle(c *gin.Context, path string) {
	if _, ok := h.fetch(c, path); !ok {
		return
	}
	var req model.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	srv, err := h.svc.Toggle(c.Request.Context(), path, *req.Enabled)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, srv)
}

func (h *ServerHandler) rate(c *gin.Context, path string) {
	if _, ok := h.fetch(c, path); !ok {
		return
	}
	var req model.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	authCtx := caller(c, h.resolver)
	srv, err := h.svc.Rate(c.Request.Context(), path, authCtx.Username, req.Rating)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, srv)
}
