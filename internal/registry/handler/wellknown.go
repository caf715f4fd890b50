package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// gatewayVersion is stamped by the build; "dev" for local builds.
var gatewayVersion = "dev"

// WellKnown serves GET /.well-known/mcp-gateway.json: unauthenticated
// metadata that lets clients locate the gateway's surfaces before they hold
// a token.
func WellKnown() gin.HandlerFunc {
	body := gin.H{
		"name":    "beacon-registry",
		"version": gatewayVersion,
		"capabilities": []string{
			"mcp-servers",
			"a2a-agents",
			"semantic-search",
			"federation",
		},
		"endpoints": gin.H{
			"api":       "/api",
			"discovery": "/v0/servers",
			"search":    "/api/search/semantic",
			"health":    "/healthz",
			"metrics":   "/metrics",
		},
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}
