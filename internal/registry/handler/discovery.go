package handler

import (
	"encoding/base64"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	v0 "github.com/modelcontextprotocol/registry/pkg/api/v0"
	upstreammodel "github.com/modelcontextprotocol/registry/pkg/model"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
	"github.com/openharbor-io/beacon/internal/registry/service"
)

// namePrefix is the reverse-DNS namespace this registry publishes under.
const namePrefix = "io.openharbor.beacon"

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

// DiscoveryHandler serves the read-only /v0 listing in the upstream MCP
// registry wire format, so other registries can federate from this one.
type DiscoveryHandler struct {
	servers *service.ServerService
	logger  *zap.Logger
}

// NewDiscoveryHandler creates a DiscoveryHandler.
func NewDiscoveryHandler(servers *service.ServerService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{servers: servers, logger: logger}
}

// Register mounts the discovery routes.
func (h *DiscoveryHandler) Register(r gin.IRoutes) {
	r.GET("/v0/servers", h.List)
	// Reverse-DNS names contain a slash, so the lookup route is a catch-all.
	r.GET("/v0/servers/*name", h.Get)
}

// publishedName maps a local routing path onto the published reverse-DNS
// name.
func publishedName(path string) string {
	return namePrefix + "/" + model.TechnicalName(path)
}

// toServerJSON renders one catalog entry in the upstream wire format.
func toServerJSON(s *model.Server) v0.ServerJSON {
	out := v0.ServerJSON{
		Schema:      upstreammodel.CurrentSchemaURL,
		Name:        publishedName(s.Path),
		Title:       s.ServerName,
		Description: s.Description,
		Version:     s.Version,
	}
	if out.Version == "" {
		out.Version = "0.0.0"
	}
	if s.ProxyPassURL != "" {
		out.Remotes = []upstreammodel.Transport{{
			Type: transportWire(s.TransportType),
			URL:  s.ProxyPassURL,
		}}
	}
	return out
}

func transportWire(t model.TransportType) string {
	switch t {
	case model.TransportSSE:
		return upstreammodel.TransportTypeSSE
	case model.TransportStdio:
		return upstreammodel.TransportTypeStdio
	default:
		return upstreammodel.TransportTypeStreamableHTTP
	}
}

// List handles GET /v0/servers with opaque cursor pagination ordered by
// published name. Only enabled servers are published.
func (h *DiscoveryHandler) List(c *gin.Context) {
	servers, err := h.servers.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	published := make([]v0.ServerJSON, 0, len(servers))
	for i := range servers {
		if !servers[i].IsEnabled {
			continue
		}
		published = append(published, toServerJSON(&servers[i]))
	}
	sort.Slice(published, func(i, j int) bool { return published[i].Name < published[j].Name })

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		limit = n
	}

	// The cursor is the last name of the previous page, base64-wrapped so
	// clients treat it as opaque.
	start := 0
	if raw := c.Query("cursor"); raw != "" {
		decoded, err := base64.URLEncoding.DecodeString(raw)
		if err != nil {
			badRequest(c, "malformed cursor")
			return
		}
		after := string(decoded)
		start = sort.Search(len(published), func(i int) bool { return published[i].Name > after })
	}

	end := start + limit
	if end > len(published) {
		end = len(published)
	}
	page := published[start:end]

	resp := v0.ServerListResponse{Servers: make([]v0.ServerResponse, 0, len(page))}
	for _, s := range page {
		resp.Servers = append(resp.Servers, v0.ServerResponse{Server: s})
	}
	if end < len(published) {
		resp.Metadata.NextCursor = base64.URLEncoding.EncodeToString([]byte(page[len(page)-1].Name))
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /v0/servers/{name}.
func (h *DiscoveryHandler) Get(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if !strings.HasPrefix(name, namePrefix+"/") {
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "entity not found"})
		return
	}
	path := model.NormalizePath(strings.TrimPrefix(name, namePrefix+"/"))

	srv, err := h.servers.Get(c.Request.Context(), path)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !srv.IsEnabled {
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "entity not found"})
		return
	}
	c.JSON(http.StatusOK, v0.ServerResponse{Server: toServerJSON(srv)})
}
