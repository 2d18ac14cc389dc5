package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/graydither/internal/database"
	"github.com/rmitchellscott/graydither/internal/imageprocessing"
	"github.com/rmitchellscott/graydither/internal/logging"
	"github.com/rmitchellscott/graydither/internal/sse"
	"github.com/rmitchellscott/graydither/internal/storage"
)

// JobResult represents the outcome of one dither job
type JobResult struct {
	JobID      uuid.UUID
	Success    bool
	Error      error
	DurationMs int
}

// WorkerMetrics tracks worker pool performance
type WorkerMetrics struct {
	TotalJobs     int64 `json:"total_jobs"`
	SuccessJobs   int64 `json:"success_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	ActiveWorkers int32 `json:"active_workers"` // workers currently running a job
	QueueLength   int32 `json:"queue_length"`
}

// EventPublisher receives job status transitions
type EventPublisher interface {
	PublishJobUpdate(update sse.JobUpdate)
}

// Options configures a WorkerPool
type Options struct {
	Workers         int
	QueueSize       int
	FeedInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration // zero disables cleanup
	MaxPixels       int64         // source image limit, defaults to imageprocessing.DefaultMaxPixels
	Events          EventPublisher
}

// WorkerPool runs dither jobs on a fixed set of goroutines fed through a channel
type WorkerPool struct {
	workerCount int
	jobChan     chan uuid.UUID
	resultChan  chan JobResult
	quitChan    chan struct{}
	wg          sync.WaitGroup

	jobs    *database.JobService
	images  *storage.ImageStorage
	options Options
	metrics WorkerMetrics

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(jobs *database.JobService, images *storage.ImageStorage, options Options) *WorkerPool {
	if options.Workers <= 0 {
		options.Workers = 2
	}
	if options.QueueSize <= 0 {
		options.QueueSize = 100
	}
	if options.MaxPixels <= 0 {
		options.MaxPixels = imageprocessing.DefaultMaxPixels
	}
	if options.FeedInterval <= 0 {
		options.FeedInterval = 10 * time.Second
	}
	if options.CleanupInterval <= 0 {
		options.CleanupInterval = time.Hour
	}

	return &WorkerPool{
		workerCount: options.Workers,
		jobChan:     make(chan uuid.UUID, options.QueueSize),
		resultChan:  make(chan JobResult, options.QueueSize),
		quitChan:    make(chan struct{}),
		jobs:        jobs,
		images:      images,
		options:     options,
	}
}

// Start launches the workers, the result processor, the database feeder and the cleanup
// routine. Jobs left in processing by a previous run are returned to pending first.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.stopped {
		return fmt.Errorf("worker pool already stopped")
	}

	if n, err := p.jobs.ResetProcessing(ctx); err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	} else if n > 0 {
		logging.InfoWithComponent(logging.ComponentWorkerPool, "Recovered interrupted jobs", "count", n)
	}

	logging.InfoWithComponent(logging.ComponentWorkerPool, "Starting worker pool", "workers", p.workerCount, "queue_size", cap(p.jobChan))
	p.running = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.processResults()

	p.wg.Add(1)
	go p.feedJobs(ctx)

	if p.options.Retention > 0 {
		p.wg.Add(1)
		go p.cleanupRoutine(ctx)
	}

	return nil
}

// Stop signals every goroutine to exit and waits for in-flight jobs to finish.
// Queued jobs stay pending in the database and are picked up on the next start.
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	logging.InfoWithComponent(logging.ComponentWorkerPool, "Stopping worker pool")
	p.running = false
	p.stopped = true
	close(p.quitChan)
	p.wg.Wait()

	logging.InfoWithComponent(logging.ComponentWorkerPool, "Worker pool stopped")
	return nil
}

// Submit queues a job without blocking. It reports false when the queue is full; the job
// then stays pending until the feeder picks it up.
func (p *WorkerPool) Submit(jobID uuid.UUID) bool {
	select {
	case p.jobChan <- jobID:
		return true
	default:
		logging.WarnWithComponent(logging.ComponentWorkerPool, "Job queue full, deferring job to feeder", "job_id", jobID)
		return false
	}
}

// GetMetrics returns current worker pool metrics
func (p *WorkerPool) GetMetrics() WorkerMetrics {
	return WorkerMetrics{
		TotalJobs:     atomic.LoadInt64(&p.metrics.TotalJobs),
		SuccessJobs:   atomic.LoadInt64(&p.metrics.SuccessJobs),
		FailedJobs:    atomic.LoadInt64(&p.metrics.FailedJobs),
		ActiveWorkers: atomic.LoadInt32(&p.metrics.ActiveWorkers),
		QueueLength:   int32(len(p.jobChan)),
	}
}

// feedJobs periodically queues pending jobs from the database
func (p *WorkerPool) feedJobs(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.options.FeedInterval)
	defer ticker.Stop()

	for {
		if err := p.loadPendingJobs(ctx); err != nil {
			logging.ErrorWithComponent(logging.ComponentWorkerPool, "Failed to load pending jobs", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-p.quitChan:
			return
		case <-ticker.C:
		}
	}
}

// loadPendingJobs fills the free part of the queue with the oldest pending jobs.
// A job queued twice is harmless: only one worker can claim it.
func (p *WorkerPool) loadPendingJobs(ctx context.Context) error {
	free := cap(p.jobChan) - len(p.jobChan)
	if free <= cap(p.jobChan)/5 {
		return nil
	}

	ids, err := p.jobs.ListPending(ctx, free)
	if err != nil {
		return err
	}

	submitted := 0
	for _, id := range ids {
		if !p.Submit(id) {
			break
		}
		submitted++
	}
	if submitted > 0 {
		logging.DebugWithComponent(logging.ComponentWorkerPool, "Queued pending jobs", "count", submitted)
	}
	return nil
}

// processResults records metrics and logs job outcomes
func (p *WorkerPool) processResults() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quitChan:
			return
		case result := <-p.resultChan:
			p.handleResult(result)
		}
	}
}

func (p *WorkerPool) handleResult(result JobResult) {
	if result.Success {
		atomic.AddInt64(&p.metrics.SuccessJobs, 1)
		logging.DebugWithComponent(logging.ComponentWorkerPool, "Dither job completed",
			"job_id", result.JobID,
			"duration_s", float64(result.DurationMs)/1000.0)
		return
	}

	atomic.AddInt64(&p.metrics.FailedJobs, 1)
	logging.ErrorWithComponent(logging.ComponentWorkerPool, "Dither job failed", "job_id", result.JobID, "error", result.Error)
}

// cleanupRoutine removes jobs and images past the retention period
func (p *WorkerPool) cleanupRoutine(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quitChan:
			return
		case <-ticker.C:
			if err := p.Cleanup(ctx); err != nil {
				logging.ErrorWithComponent(logging.ComponentWorkerPool, "Failed to cleanup old jobs", "error", err)
			}
		}
	}
}

// Cleanup deletes finished jobs older than the retention period along with their images,
// then sweeps stored images of the same age that no job references anymore.
func (p *WorkerPool) Cleanup(ctx context.Context) error {
	if p.options.Retention <= 0 {
		return nil
	}

	deleted, err := p.jobs.DeleteOlderThan(ctx, time.Now().Add(-p.options.Retention))
	if err != nil {
		return err
	}
	for _, job := range deleted {
		if err := p.images.Remove(ctx, job.InputKey, job.OutputKey); err != nil {
			logging.WarnWithComponent(logging.ComponentWorkerPool, "Failed to remove job images", "job_id", job.ID, "error", err)
		}
	}

	removed, err := p.images.CleanupOldImages(ctx, p.options.Retention)
	if err != nil {
		return err
	}

	if len(deleted) > 0 || removed > 0 {
		logging.InfoWithComponent(logging.ComponentWorkerPool, "Removed expired jobs", "jobs", len(deleted), "orphaned_images", removed)
	}
	return nil
}

// worker runs jobs until the pool stops
func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logging.DebugWithComponent(logging.ComponentWorkerPool, "Starting worker", "id", id)

	for {
		select {
		case <-p.quitChan:
			logging.DebugWithComponent(logging.ComponentWorkerPool, "Worker stopping", "id", id)
			return
		case <-ctx.Done():
			return
		case jobID := <-p.jobChan:
			result, ran := p.RunJob(ctx, jobID)
			if !ran {
				continue
			}
			select {
			case p.resultChan <- result:
			case <-p.quitChan:
			}
		}
	}
}

// RunJob claims and processes one job. It reports false when the job was not claimed,
// because it is no longer pending or another worker owns it.
func (p *WorkerPool) RunJob(ctx context.Context, jobID uuid.UUID) (JobResult, bool) {
	claimed, err := p.jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentWorkerPool, "Failed to claim job", "job_id", jobID, "error", err)
		return JobResult{}, false
	}
	if !claimed {
		return JobResult{}, false
	}
	atomic.AddInt64(&p.metrics.TotalJobs, 1)
	atomic.AddInt32(&p.metrics.ActiveWorkers, 1)
	defer atomic.AddInt32(&p.metrics.ActiveWorkers, -1)
	p.publish(sse.JobUpdate{JobID: jobID, Status: string(database.JobStatusProcessing)})

	start := time.Now()
	res, err := p.process(ctx, jobID)
	durationMs := int(time.Since(start).Milliseconds())

	result := JobResult{JobID: jobID, Success: err == nil, Error: err, DurationMs: durationMs}
	if err != nil {
		if markErr := p.jobs.MarkFailed(ctx, jobID, err.Error(), durationMs); markErr != nil {
			logging.ErrorWithComponent(logging.ComponentWorkerPool, "Failed to record job failure", "job_id", jobID, "error", markErr)
		}
		p.publish(sse.JobUpdate{JobID: jobID, Status: string(database.JobStatusFailed), Error: err.Error()})
		return result, true
	}

	res.DurationMs = durationMs
	if err := p.jobs.MarkCompleted(ctx, jobID, *res); err != nil {
		result.Success = false
		result.Error = fmt.Errorf("failed to record job result: %w", err)
		p.publish(sse.JobUpdate{JobID: jobID, Status: string(database.JobStatusFailed), Error: result.Error.Error()})
		return result, true
	}
	p.publish(sse.JobUpdate{
		JobID:   jobID,
		Status:  string(database.JobStatusCompleted),
		Message: fmt.Sprintf("%dx%d", res.Width, res.Height),
	})
	return result, true
}

func (p *WorkerPool) publish(update sse.JobUpdate) {
	if p.options.Events != nil {
		p.options.Events.PublishJobUpdate(update)
	}
}

// process loads the stored input, dithers it and stores the encoded output
func (p *WorkerPool) process(ctx context.Context, jobID uuid.UUID) (*database.JobResult, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	options, err := job.ProcessingOptions()
	if err != nil {
		return nil, err
	}

	data, err := p.images.ReadAll(ctx, job.InputKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load input image: %w", err)
	}

	img, _, err := imageprocessing.DecodeLimited(data, p.options.MaxPixels)
	if err != nil {
		return nil, err
	}

	rendered, err := imageprocessing.Render(img, options)
	if err != nil {
		return nil, err
	}

	stored, err := p.images.StoreOutput(ctx, job.ID, rendered.Format.Extension(), rendered.Data)
	if err != nil {
		return nil, err
	}

	return &database.JobResult{
		OutputKey:   stored.Key,
		OutputBytes: stored.Size,
		SrcWidth:    rendered.SrcWidth,
		SrcHeight:   rendered.SrcHeight,
		Width:       rendered.Width,
		Height:      rendered.Height,
	}, nil
}
