package handler

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/access"
	"github.com/openharbor-io/beacon/internal/auth"
	"github.com/openharbor-io/beacon/internal/config"
	"github.com/openharbor-io/beacon/internal/federation"
	"github.com/openharbor-io/beacon/internal/health"
	"github.com/openharbor-io/beacon/internal/registry/repository"
	"github.com/openharbor-io/beacon/internal/registry/service"
	"github.com/openharbor-io/beacon/internal/search"
)

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Settings   config.Settings
	Verifier   *auth.Verifier
	Resolver   *access.Resolver
	Servers    *service.ServerService
	Agents     *service.AgentService
	Search     *search.Service
	Federation *federation.Service
	Monitor    *health.Monitor
	Scans      repository.SecurityScanRepository
	Logger     *zap.Logger
}

// NewRouter assembles the full HTTP surface: public liveness, metrics, and
// discovery routes, plus the bearer-authenticated /api group.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	origins := deps.Settings.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))
	router.Use(SecurityHeaders())
	router.Use(BodyLimit())
	router.Use(RateLimiter(deps.Settings.RateLimitRPS, deps.Settings.RateLimitRPS*2))
	router.Use(RequestLogger(deps.Logger))
	router.Use(PrometheusMiddleware())

	healthHandler := NewHealthHandler(deps.Monitor, deps.Resolver, deps.Logger)
	healthHandler.RegisterPublic(router)
	router.GET("/metrics", MetricsHandler())
	router.GET("/.well-known/mcp-gateway.json", WellKnown())
	NewDiscoveryHandler(deps.Servers, deps.Logger).Register(router)

	api := router.Group("/api", auth.Middleware(deps.Verifier, deps.Logger))
	{
		NewAuthHandler(deps.Resolver).Register(api)
		NewServerHandler(deps.Servers, deps.Resolver, deps.Logger).Register(api)
		NewAgentHandler(deps.Agents, deps.Resolver, deps.Logger).Register(api)
		NewSearchHandler(deps.Search, deps.Agents, deps.Resolver, deps.Logger).Register(api)
		NewFederationHandler(deps.Federation, deps.Resolver, deps.Logger).Register(api)
		healthHandler.Register(api)
		NewScanHandler(deps.Scans, deps.Resolver, deps.Logger).Register(api)
	}

	return router
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.Contains(o, "*") {
			return true
		}
	}
	return false
}
