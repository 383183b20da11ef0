package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sitepulse/api/config"
	"sitepulse/api/handlers"
	"sitepulse/api/logger"
	"sitepulse/api/middleware"
)

// routes holds what newRouter wires. Stats and Limiter may be nil.
type routes struct {
	Config  *config.Config
	Logger  *zap.Logger
	Ingest  *handlers.IngestHandlers
	Stats   *handlers.StatsHandlers
	Limiter *middleware.RateLimiter
	DB      handlers.Pinger
}

func newRouter(rt routes) *gin.Engine {
	r := gin.New()
	r.Use(logger.GinMiddleware(rt.Logger), logger.Recovery(rt.Logger))

	ingestGroup := r.Group(rt.Config.Ingest.Path, middleware.IngestCORS())
	if rt.Limiter != nil {
		ingestGroup.Use(rt.Limiter.Middleware())
	}
	{
		ingestGroup.OPTIONS("", func(c *gin.Context) {})
		ingestGroup.GET("", rt.Ingest.Diagnostics)
		ingestGroup.POST("", middleware.IngestAuth(rt.Config.Ingest, rt.Logger), rt.Ingest.Ingest)
	}

	if rt.Stats != nil {
		stats := r.Group("/api/stats", middleware.CORSMiddleware(rt.Config.App.FEOrigin))
		stats.OPTIONS("/*path", func(c *gin.Context) {})

		protected := stats.Group("", middleware.AuthRequired([]byte(rt.Config.JWT.Secret), rt.Logger))
		{
			protected.GET("/event-counts", rt.Stats.GetEventCountsOverTime)
			protected.GET("/unique-visitors", rt.Stats.GetUniqueVisitorsOverTime)
			protected.GET("/top-paths", rt.Stats.GetTopNPagePaths)
			protected.GET("/content-types", rt.Stats.GetContentTypeBreakdown)
			protected.GET("/revenue", rt.Stats.GetRevenue)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rt.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
