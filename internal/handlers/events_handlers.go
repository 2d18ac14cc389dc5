package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/graydither/internal/database"
	"github.com/rmitchellscott/graydither/internal/logging"
	"github.com/rmitchellscott/graydither/internal/sse"
)

var keepAliveInterval = 30 * time.Second

func isFinished(status string) bool {
	return status == string(database.JobStatusCompleted) || status == string(database.JobStatusFailed)
}

// JobEventsHandler streams status updates of one job as server-sent events.
// The stream ends once the job completes or fails.
func (h *Handler) JobEventsHandler(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if h.events == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Event streaming is not enabled"})
		return
	}

	// Subscribe before reporting the current state so no transition is missed
	events, cancel := h.events.Subscribe(job.ID)
	defer cancel()

	current, err := h.jobs.Get(c.Request.Context(), job.ID)
	if err != nil {
		current = job
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	initial := sse.JobUpdate{
		JobID:     current.ID,
		Status:    string(current.Status),
		Error:     current.Error,
		Timestamp: time.Now().UTC(),
	}
	c.SSEvent("job_update", initial)
	c.Writer.Flush()
	if isFinished(initial.Status) {
		return
	}

	logging.DebugWithComponent(logging.ComponentAPI, "Job event client connected", "job_id", job.ID)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			logging.DebugWithComponent(logging.ComponentAPI, "Job event client disconnected", "job_id", job.ID)
			return
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().UTC()})
			c.Writer.Flush()
		case ev := <-events:
			c.SSEvent(ev.Type, ev.Data)
			c.Writer.Flush()
			if update, ok := ev.Data.(sse.JobUpdate); ok && isFinished(update.Status) {
				return
			}
		}
	}
}
