package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/carscout/adapter"
	"github.com/use-agent/carscout/api/handler"
	"github.com/use-agent/carscout/api/middleware"
	"github.com/use-agent/carscout/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so monitoring checks always reach them.
func NewRouter(s handler.Searcher, fc handler.FetchCounter, sources []*adapter.Adapter, cfg *config.Config, log *slog.Logger, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	// Health: no auth required. Degraded once more than two searches'
	// worth of browsers are open.
	v1.GET("/health", handler.Health(fc, len(sources), 2*len(sources), startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/search", handler.Search(s, sources, log))
	protected.GET("/sources", handler.Sources(sources))

	return r
}
