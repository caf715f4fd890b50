package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/registry/repository"
)

// ScanHandler exposes stored security scan results. Admin-only: scan output
// names the analyzers and findings, which is more than a catalog consumer
// should see.
type ScanHandler struct {
	scans    repository.SecurityScanRepository
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(scans repository.SecurityScanRepository, resolver *access.Resolver, logger *zap.Logger) *ScanHandler {
	return &ScanHandler{scans: scans, resolver: resolver, logger: logger}
}

// Register mounts the scan routes on rg.
func (h *ScanHandler) Register(rg *gin.RouterGroup) {
	sg := rg.Group("/scans", h.adminOnly)
	{
		sg.GET("/:seg1", h.Latest)
		sg.GET("/:seg1/:seg2", h.Latest)
	}
}

func (h *ScanHandler) adminOnly(c *gin.Context) {
	if !caller(c, h.resolver).IsAdmin {
		denied(c)
		c.Abort()
		return
	}
	c.Next()
}

// Latest handles GET /api/scans/{path}: the most recent scan result for the
// entity, with the full history alongside.
func (h *ScanHandler) Latest(c *gin.Context) {
	path, _ := entityPath(c, false)

	latest, err := h.scans.Latest(c.Request.Context(), path)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	history, err := h.scans.History(c.Request.Context(), path)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":    path,
		"latest":  latest,
		"history": history,
	})
}
