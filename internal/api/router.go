package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"cleaning-schedule-backend/config"
	"cleaning-schedule-backend/internal/metrics"
	"cleaning-schedule-backend/internal/mw"
)

// NewResponseCache creates the cache behind the schedule read endpoints.
// Background writers share it to drop stale views after an import.
func NewResponseCache(cfg config.ServerConfig) *cache.Cache {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return cache.New(ttl, 2*ttl)
}

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig, m *metrics.Metrics, responses *cache.Cache) *gin.Engine {
	r := gin.Default()

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	if responses == nil {
		responses = NewResponseCache(cfg)
	}
	caching := mw.Cache(responses, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	invalidate := mw.Invalidate(responses)

	r.GET("/healthz", handler.Healthz)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		schedule := api.Group("/schedule")
		schedule.POST("/imports", invalidate, handler.PostImport)
		schedule.GET("/imports", handler.GetImports)
		schedule.GET("/events", caching, handler.GetEvents)
		schedule.GET("/versions", handler.GetVersions)
		schedule.GET("/versions/:id/changes", handler.GetVersionChanges)

		events := api.Group("/events")
		events.GET("/:id", handler.GetEvent)
		events.POST("/:id/start", invalidate, handler.PostStart)
		events.POST("/:id/finish", invalidate, handler.PostFinish)
		events.POST("/:id/swap", invalidate, handler.PostSwap)

		api.GET("/cleaners", handler.GetCleaners)
		api.POST("/cleaners", handler.PostCleaner)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}
