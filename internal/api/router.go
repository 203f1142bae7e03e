package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/restobook/sumup-sync/internal/api/handler"
	"github.com/restobook/sumup-sync/internal/api/middleware"
	"github.com/restobook/sumup-sync/internal/domain/session"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	sessions session.Repository,
	syncHandler *handler.SyncHandler,
	runsHandler *handler.RunsHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(logger, sessions))
	{
		v1.POST("/sync", syncHandler.Sync)
		v1.POST("/sync-items", syncHandler.SyncItems)
		v1.GET("/sync-runs", runsHandler.List)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
