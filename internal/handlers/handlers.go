package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmitchellscott/graydither/internal/config"
	"github.com/rmitchellscott/graydither/internal/database"
	"github.com/rmitchellscott/graydither/internal/jobs"
	"github.com/rmitchellscott/graydither/internal/middleware"
	"github.com/rmitchellscott/graydither/internal/sse"
	"github.com/rmitchellscott/graydither/internal/storage"
	"github.com/rmitchellscott/graydither/internal/utils"
)

// JobQueue accepts job IDs for asynchronous processing
type JobQueue interface {
	Submit(jobID uuid.UUID) bool
	GetMetrics() jobs.WorkerMetrics
}

// Handler serves the HTTP API
type Handler struct {
	settings *config.Settings
	db       *gorm.DB
	jobs     *database.JobService
	images   *storage.ImageStorage
	queue    JobQueue
	events   *sse.Service
	policy   *utils.URLPolicy
	fetcher  *http.Client
}

// New creates the API handler
func New(settings *config.Settings, db *gorm.DB, images *storage.ImageStorage, queue JobQueue, events *sse.Service) *Handler {
	policy := utils.NewURLPolicy(settings)
	return &Handler{
		settings: settings,
		db:       db,
		jobs:     database.NewJobService(db),
		images:   images,
		queue:    queue,
		events:   events,
		policy:   policy,
		fetcher:  policy.HTTPClient(settings.FetchTimeout),
	}
}

// RegisterRoutes mounts the API under /api
func (h *Handler) RegisterRoutes(r gin.IRouter, limiter *middleware.IPRateLimiter) {
	api := r.Group("/api")

	api.GET("/health", h.HealthHandler)
	api.GET("/version", VersionHandler)
	api.GET("/stats", h.StatsHandler)

	uploadLimit := middleware.RequestSizeLimit(h.settings.MaxUploadBytes() + multipartOverhead)
	api.POST("/dither", limiter.RateLimit(), uploadLimit, h.DitherHandler)
	api.POST("/jobs", limiter.RateLimit(), uploadLimit, h.CreateJobHandler)

	api.GET("/jobs", h.ListJobsHandler)
	api.GET("/jobs/:id", h.GetJobHandler)
	api.GET("/jobs/:id/image", h.GetJobImageHandler)
	api.GET("/jobs/:id/events", h.JobEventsHandler)
	api.DELETE("/jobs/:id", h.DeleteJobHandler)
}

// multipartOverhead leaves room for form boundaries and fields around a maximum size upload
const multipartOverhead = 64 << 10
