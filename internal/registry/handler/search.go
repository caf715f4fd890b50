package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/service"
	"github.com/openharbor-io/beacon/internal/search"
)

// SearchHandler serves POST /api/search/semantic. Results are trimmed to the
// caller's grants after ranking, so scoring is identical for every caller.
type SearchHandler struct {
	svc      *search.Service
	agents   *service.AgentService
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(svc *search.Service, agents *service.AgentService, resolver *access.Resolver, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, agents: agents, resolver: resolver, logger: logger}
}

// Register mounts the search routes on rg.
func (h *SearchHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/search/semantic", h.Semantic)
}

// Semantic handles the hybrid search query.
func (h *SearchHandler) Semantic(c *gin.Context) {
	var req model.SemanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.svc.Search(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	authCtx := caller(c, h.resolver)

	servers := resp.Servers[:0]
	for _, hit := range resp.Servers {
		probe := model.Server{Path: hit.Path, ServerName: hit.Name}
		if h.resolver.CanAccessServer(authCtx, &probe) {
			servers = append(servers, hit)
		}
	}
	resp.Servers = servers

	tools := resp.Tools[:0]
	for _, hit := range resp.Tools {
		probe := model.Server{Path: hit.ServerPath, ServerName: hit.ServerName}
		if h.resolver.CanAccessServer(authCtx, &probe) {
			tools = append(tools, hit)
		}
	}
	resp.Tools = tools

	// Agent visibility lives on the entity, so group-restricted and private
	// agents need the stored record to decide.
	agents := resp.Agents[:0]
	for _, hit := range resp.Agents {
		agent, err := h.agents.Get(c.Request.Context(), hit.Path)
		if err != nil {
			continue
		}
		if h.resolver.CanAccessAgent(authCtx, agent) {
			agents = append(agents, hit)
		}
	}
	resp.Agents = agents

	c.JSON(http.StatusOK, resp)
}
