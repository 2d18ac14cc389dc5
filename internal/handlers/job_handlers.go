package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rmitchellscott/graydither/internal/database"
	"github.com/rmitchellscott/graydither/internal/imageprocessing"
	"github.com/rmitchellscott/graydither/internal/logging"
	"github.com/rmitchellscott/graydither/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// jobResponse is a job as returned by the API
type jobResponse struct {
	*database.DitherJob
	ImageURL string `json:"image_url,omitempty"`
}

func newJobResponse(c *gin.Context, job *database.DitherJob) jobResponse {
	resp := jobResponse{DitherJob: job}
	if job.Status == database.JobStatusCompleted {
		resp.ImageURL = utils.AbsoluteURL(c.Request, "/api/jobs/"+job.ID.String()+"/image")
	}
	return resp
}

// CreateJobHandler stores the source image and queues an asynchronous dither job
func (h *Handler) CreateJobHandler(c *gin.Context) {
	ctx := c.Request.Context()

	req, options, err := h.bindOptions(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	src, err := h.loadSource(ctx, c, req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	job := &database.DitherJob{
		ID:         uuid.New(),
		SourceType: src.sourceType,
		SourceURL:  src.sourceURL,
		SrcWidth:   src.config.Width,
		SrcHeight:  src.config.Height,
	}
	if err := job.SetProcessingOptions(options); err != nil {
		abortWithError(c, err)
		return
	}

	stored, err := h.images.StoreInput(ctx, job.ID, src.data)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to store input image", "job_id", job.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store image"})
		return
	}
	job.InputKey = stored.Key
	job.InputSHA256 = stored.SHA256

	if err := h.jobs.Create(ctx, job); err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to create job", "job_id", job.ID, "error", err)
		h.images.Remove(ctx, stored.Key)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}

	queued := h.queue.Submit(job.ID)
	logging.InfoWithComponent(logging.ComponentAPI, "Queued dither job", "job_id", job.ID, "bits", job.BitDepth, "queued", queued)

	c.Header("Location", "/api/jobs/"+job.ID.String())
	c.JSON(http.StatusAccepted, gin.H{"job": newJobResponse(c, job)})
}

// ListJobsHandler returns jobs newest first
func (h *Handler) ListJobsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must not be negative"})
		return
	}
	status := database.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), limit, offset, status)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to list jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch jobs"})
		return
	}

	resp := make([]jobResponse, len(jobs))
	for i := range jobs {
		resp[i] = newJobResponse(c, &jobs[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   resp,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// loadJob resolves the :id parameter, writing the error response itself on failure
func (h *Handler) loadJob(c *gin.Context) (*database.DitherJob, bool) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return nil, false
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if errors.Is(err, database.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return nil, false
	}
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to load job", "job_id", jobID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
		return nil, false
	}
	return job, true
}

// GetJobHandler returns a single job
func (h *Handler) GetJobHandler(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": newJobResponse(c, job)})
}

// GetJobImageHandler streams the dithered image of a completed job
func (h *Handler) GetJobImageHandler(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if job.Status != database.JobStatusCompleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job image not available", "status": job.Status})
		return
	}

	data, err := h.images.ReadAll(c.Request.Context(), job.OutputKey)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to read job image", "job_id", job.ID, "key", job.OutputKey, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Job image not available"})
		return
	}

	format, _ := imageprocessing.ParseOutputFormat(job.Format)
	setImageHeaders(c, job.BitDepth, job.Width, job.Height)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, format.ContentType(), data)
}

// DeleteJobHandler removes a job and its images
func (h *Handler) DeleteJobHandler(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if job.Status == database.JobStatusProcessing {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is being processed"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.jobs.Delete(ctx, job.ID); err != nil {
		logging.ErrorWithComponent(logging.ComponentAPI, "Failed to delete job", "job_id", job.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete job"})
		return
	}
	if err := h.images.Remove(ctx, job.InputKey, job.OutputKey); err != nil {
		logging.WarnWithComponent(logging.ComponentAPI, "Failed to remove job images", "job_id", job.ID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Job deleted"})
}
