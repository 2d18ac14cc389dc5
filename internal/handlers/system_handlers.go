package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/graydither/internal/logging"
	"github.com/rmitchellscott/graydither/internal/version"
)

// HealthHandler reports whether the database is reachable
func (h *Handler) HealthHandler(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		logging.WarnWithComponent(logging.ComponentAPI, "Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

// StatsHandler returns job counts and worker pool metrics
func (h *Handler) StatsHandler(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to load job stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":    stats,
		"workers": h.queue.GetMetrics(),
	})
}

// VersionHandler returns build information
func VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
