package main

import (
	// standard library
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	// third-party
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	// internal
	"github.com/rmitchellscott/graydither/internal/config"
	"github.com/rmitchellscott/graydither/internal/database"
	"github.com/rmitchellscott/graydither/internal/handlers"
	"github.com/rmitchellscott/graydither/internal/jobs"
	"github.com/rmitchellscott/graydither/internal/logging"
	"github.com/rmitchellscott/graydither/internal/middleware"
	"github.com/rmitchellscott/graydither/internal/sse"
	"github.com/rmitchellscott/graydither/internal/storage"
	"github.com/rmitchellscott/graydither/internal/version"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println(version.Long())
		os.Exit(0)
	}

	_ = godotenv.Load()

	settings, err := config.Load()
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(settings.LogLevel, settings.LogFormat)
	logging.InfoWithComponent(logging.ComponentStartup, "Starting graydither", "version", version.String())

	db, err := database.Initialize(database.GetDatabaseConfig(settings))
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	images := storage.NewImageStorage(storage.NewFilesystemBackend(filepath.Join(settings.DataDir, "images")))
	events := sse.NewService()

	pool := jobs.NewWorkerPool(database.NewJobService(db), images, jobs.Options{
		Workers:   settings.Workers,
		QueueSize: settings.QueueSize,
		Retention: settings.ImageRetention,
		MaxPixels: int64(settings.MaxSourcePixels),
		Events:    events,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	gin.SetMode(settings.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{"X-Bit-Depth", "X-Image-Width", "X-Image-Height", "Location"}
	router.Use(cors.New(corsConfig))

	limiter := middleware.NewIPRateLimiter(settings.RateLimitPerMinute, settings.RateLimitBurst)
	stopLimiterCleanup := make(chan struct{})
	go limiter.CleanupRoutine(stopLimiterCleanup)

	handlers.New(settings, db, images, pool, events).RegisterRoutes(router, limiter)

	addr := ":" + settings.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.InfoWithComponent(logging.ComponentStartup, "Listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("Shutting down server and workers")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(stopLimiterCleanup)
	if err := pool.Stop(); err != nil {
		logging.Error("Error stopping worker pool", "error", err)
	}
	cancel()

	logging.Info("Server and workers stopped")
}
