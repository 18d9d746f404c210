package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudmeter/backend/internal/infrastructure/logger"
	"github.com/cloudmeter/backend/internal/infrastructure/proxy"
	"github.com/cloudmeter/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config assembles the pieces of the HTTP surface: everything the rule
// table does not claim falls through to the reverse proxy with billing
// enforcement applied on the way.
type Config struct {
	Gateway    *middleware.Gateway
	Backend    *proxy.Backend
	Logger     *zap.Logger
	Registrars []RouteRegistrar
}

// New builds the gin engine: request ID and logging first, then the
// enforcement gateway, then the reverse proxy as the catch-all handler.
// Registrars (e.g. the order-event handler on worker deployments) mount
// under /v1 and bypass enforcement.
func New(cfg Config) *gin.Engine {
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(cfg.Logger))
	engine.Use(logger.Recovery(cfg.Logger))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if len(cfg.Registrars) > 0 {
		api := engine.Group("/v1")
		for _, r := range cfg.Registrars {
			r.RegisterRoutes(api)
		}
	}

	if cfg.Gateway != nil {
		engine.NoRoute(cfg.Gateway.Handler(), cfg.Backend.Handler())
	} else {
		engine.NoRoute(cfg.Backend.Handler())
	}

	return engine
}
