package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/browserfetch/api/handler"
	"github.com/use-agent/browserfetch/api/middleware"
	"github.com/use-agent/browserfetch/cache"
	"github.com/use-agent/browserfetch/cleaner"
	"github.com/use-agent/browserfetch/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics sit outside auth so probes and scrapers always work.
func NewRouter(f handler.Fetcher, cl *cleaner.Cleaner, cc *cache.Cache, jobs *handler.JobStore, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(f, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	settings := handler.Settings{
		DefaultProxy: cfg.Browser.DefaultProxy,
		MaxTimeout:   cfg.Fetch.MaxTimeout,
	}
	protected.POST("/fetch", handler.Fetch(f, cl, cc, settings))
	protected.POST("/fetch/async", handler.PostFetchAsync(f, cl, jobs, settings))
	protected.GET("/fetch/:id", handler.GetFetchJob(jobs))

	return r
}
