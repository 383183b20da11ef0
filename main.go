// api/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitepulse/api/config"
	"sitepulse/api/database"
	"sitepulse/api/handlers"
	"sitepulse/api/ingest"
	"sitepulse/api/logger"
	"sitepulse/api/middleware"
	"sitepulse/api/store"
)

func main() {
	issueToken := flag.Duration("issue-token", 0, "print a stats read token valid for this long and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *issueToken > 0 {
		if err := printToken(os.Stdout, cfg, *issueToken); err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		return
	}

	zlog := logger.New(cfg.Log)
	defer zlog.Sync()

	if cfg.App.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// --- PostgreSQL (sites, page rules, event tables) ---
	dbClient, err := database.NewPostgresDB(ctx, cfg.Database.URL, zlog)
	if err != nil {
		zlog.Fatal("Failed to initialize PostgreSQL database", zap.Error(err))
	}
	defer dbClient.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(dbClient.DB, zlog); err != nil {
			zlog.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// --- ClickHouse (optional analytics mirror and stats) ---
	var mirror ingest.EventMirror
	var statsHandlers *handlers.StatsHandlers
	if cfg.ClickHouse.Enabled() {
		chClient, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, zlog)
		if err != nil {
			zlog.Error("ClickHouse unavailable, analytics mirror disabled", zap.Error(err))
		} else {
			defer chClient.Close()
			analyticsStore := store.NewAnalyticsStore(chClient, zlog)
			if err := analyticsStore.EnsureSchema(ctx); err != nil {
				zlog.Fatal("Failed to prepare ClickHouse schema", zap.Error(err))
			}
			mirror = analyticsStore
			if cfg.JWT.Secret != "" {
				statsHandlers = handlers.NewStatsHandlers(analyticsStore, zlog)
			} else {
				zlog.Warn("JWT_SECRET_KEY not set, stats API disabled")
			}
		}
	}

	// --- Stores and pipeline ---
	pipeline := ingest.New(
		store.NewSiteStore(dbClient.DB),
		store.NewPageRuleStore(dbClient.DB),
		store.NewEventStore(dbClient.DB),
		mirror,
		ingest.Options{
			OwnerID: cfg.Ingest.OwnerUserID,
			Policy:  cfg.Ingest.ResolutionPolicy,
			Mode:    cfg.Ingest.ProcessingMode,
		},
		zlog,
	)
	ingestHandlers := handlers.NewIngestHandlers(pipeline, dbClient, store.NewOwnerStore(dbClient.DB), cfg, zlog)

	if missing := cfg.Ingest.Missing(); len(missing) > 0 {
		zlog.Warn("Ingest endpoint will refuse requests until configured", zap.Strings("missing", missing))
	}

	var limiter *middleware.RateLimiter
	if cfg.Ingest.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Ingest.RateLimit, cfg.Ingest.RateBurst)
		defer limiter.Stop()
	}

	r := newRouter(routes{
		Config:  cfg,
		Logger:  zlog,
		Ingest:  ingestHandlers,
		Stats:   statsHandlers,
		Limiter: limiter,
		DB:      dbClient,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: r,
	}

	go func() {
		zlog.Info("Go API server starting",
			zap.String("addr", srv.Addr),
			zap.String("ingest_path", cfg.Ingest.Path),
			zap.String("resolution_policy", cfg.Ingest.ResolutionPolicy),
			zap.String("processing_mode", cfg.Ingest.ProcessingMode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Go API server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	zlog.Info("Server exiting.")
}
