package jobs

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rmitchellscott/graydither/internal/database"
	"github.com/rmitchellscott/graydither/internal/imageprocessing"
	"github.com/rmitchellscott/graydither/internal/sse"
	"github.com/rmitchellscott/graydither/internal/storage"
)

type testEnv struct {
	jobs   *database.JobService
	images *storage.ImageStorage
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Initialize(&database.DatabaseConfig{Type: "sqlite", DataDir: dir})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	return &testEnv{
		jobs:   database.NewJobService(db),
		images: storage.NewImageStorage(storage.NewFilesystemBackend(t.TempDir())),
	}
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x * 20), uint8(y * 20), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// createJob stores input and inserts a pending job for it
func (e *testEnv) createJob(t *testing.T, input []byte, options imageprocessing.ProcessingOptions) *database.DitherJob {
	t.Helper()
	ctx := context.Background()

	job := &database.DitherJob{ID: uuid.New(), SourceType: database.SourceUpload}
	stored, err := e.images.StoreInput(ctx, job.ID, input)
	if err != nil {
		t.Fatal(err)
	}
	job.InputKey = stored.Key
	job.InputSHA256 = stored.SHA256
	if err := job.SetProcessingOptions(options); err != nil {
		t.Fatal(err)
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		t.Fatal(err)
	}
	return job
}

func waitForStatus(t *testing.T, jobs *database.JobService, id uuid.UUID, status database.JobStatus) *database.DitherJob {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.Get(context.Background(), id)
		if err == nil && job.Status == status {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s", id, status)
	return nil
}

func TestRunJob_Completes(t *testing.T) {
	env := setupTestEnv(t)
	pool := NewWorkerPool(env.jobs, env.images, Options{})
	ctx := context.Background()

	options := imageprocessing.ProcessingOptions{BitDepth: 2, Width: 6, Height: 6, Resize: imageprocessing.ResizeFit}
	job := env.createJob(t, testPNG(t, 12, 8), options)

	result, ran := pool.RunJob(ctx, job.ID)
	if !ran || !result.Success {
		t.Fatalf("expected successful run, got ran=%v result=%+v", ran, result)
	}

	got, _ := env.jobs.Get(ctx, job.ID)
	if got.Status != database.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.Error)
	}
	if got.Width != 6 || got.Height != 6 || got.SrcWidth != 12 || got.SrcHeight != 8 {
		t.Errorf("unexpected dimensions %+v", got)
	}

	data, err := env.images.ReadAll(ctx, got.OutputKey)
	if err != nil {
		t.Fatalf("ReadAll output: %v", err)
	}
	if int64(len(data)) != got.OutputBytes {
		t.Errorf("expected %d output bytes, got %d", got.OutputBytes, len(data))
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	palette := imageprocessing.GrayscalePalette(2)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			g := color.GrayModel.Convert(decoded.At(x, y)).(color.Gray)
			if palette.Index(g) < 0 || palette[palette.Index(g)] != g {
				t.Fatalf("(%d,%d): gray %d is not a 2-bit level", x, y, g.Y)
			}
		}
	}

	if _, ran := pool.RunJob(ctx, job.ID); ran {
		t.Error("a completed job must not be run again")
	}
	if m := pool.GetMetrics(); m.TotalJobs != 1 {
		t.Errorf("expected 1 claimed job, got %d", m.TotalJobs)
	}
}

func TestRunJob_FailsOnUndecodableInput(t *testing.T) {
	env := setupTestEnv(t)
	pool := NewWorkerPool(env.jobs, env.images, Options{})
	ctx := context.Background()

	job := env.createJob(t, []byte("not an image"), imageprocessing.DefaultProcessingOptions())

	result, ran := pool.RunJob(ctx, job.ID)
	if !ran || result.Success || result.Error == nil {
		t.Fatalf("expected failed run, got ran=%v result=%+v", ran, result)
	}

	got, _ := env.jobs.Get(ctx, job.ID)
	if got.Status != database.JobStatusFailed || got.Error == "" {
		t.Errorf("expected failed job with error text, got %+v", got)
	}
}

func TestRunJob_RejectsOversizedInput(t *testing.T) {
	env := setupTestEnv(t)
	pool := NewWorkerPool(env.jobs, env.images, Options{MaxPixels: 15})
	ctx := context.Background()

	job := env.createJob(t, testPNG(t, 4, 4), imageprocessing.DefaultProcessingOptions())

	result, ran := pool.RunJob(ctx, job.ID)
	if !ran || !errors.Is(result.Error, imageprocessing.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got ran=%v result=%+v", ran, result)
	}

	got, _ := env.jobs.Get(ctx, job.ID)
	if got.Status != database.JobStatusFailed {
		t.Errorf("expected failed job, got %s", got.Status)
	}
}

type recordingPublisher struct {
	updates []sse.JobUpdate
}

func (r *recordingPublisher) PublishJobUpdate(update sse.JobUpdate) {
	r.updates = append(r.updates, update)
}

func TestRunJob_PublishesStatusUpdates(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		input    []byte
		statuses []string
	}{
		{"completed", testPNG(t, 4, 4), []string{"processing", "completed"}},
		{"failed", []byte("garbage"), []string{"processing", "failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &recordingPublisher{}
			pool := NewWorkerPool(env.jobs, env.images, Options{Events: events})
			job := env.createJob(t, tt.input, imageprocessing.DefaultProcessingOptions())

			pool.RunJob(ctx, job.ID)

			if len(events.updates) != len(tt.statuses) {
				t.Fatalf("expected %d updates, got %+v", len(tt.statuses), events.updates)
			}
			for i, status := range tt.statuses {
				if events.updates[i].JobID != job.ID || events.updates[i].Status != status {
					t.Errorf("update %d: expected %s for %s, got %+v", i, status, job.ID, events.updates[i])
				}
			}
			if tt.name == "failed" && events.updates[1].Error == "" {
				t.Error("failed update should carry the error text")
			}
		})
	}
}

// busyRecorder samples the pool's busy worker count on every status update
type busyRecorder struct {
	pool *WorkerPool
	busy map[string]int32
}

func (r *busyRecorder) PublishJobUpdate(update sse.JobUpdate) {
	r.busy[update.Status] = r.pool.GetMetrics().ActiveWorkers
}

func TestRunJob_CountsActiveWorkersWhileRunning(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	recorder := &busyRecorder{busy: map[string]int32{}}
	pool := NewWorkerPool(env.jobs, env.images, Options{Workers: 3, Events: recorder})
	recorder.pool = pool

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	time.Sleep(20 * time.Millisecond)
	if m := pool.GetMetrics(); m.ActiveWorkers != 0 {
		t.Errorf("idle pool should report 0 active workers, got %d", m.ActiveWorkers)
	}

	job := env.createJob(t, testPNG(t, 4, 4), imageprocessing.DefaultProcessingOptions())
	pool.RunJob(ctx, job.ID)

	if recorder.busy["processing"] != 1 || recorder.busy["completed"] != 1 {
		t.Errorf("expected 1 active worker while the job ran, got %v", recorder.busy)
	}
	if m := pool.GetMetrics(); m.ActiveWorkers != 0 {
		t.Errorf("expected 0 active workers after the job, got %d", m.ActiveWorkers)
	}
}

func TestSubmit_FullQueue(t *testing.T) {
	env := setupTestEnv(t)
	pool := NewWorkerPool(env.jobs, env.images, Options{QueueSize: 1})

	if !pool.Submit(uuid.New()) {
		t.Fatal("expected first submit to succeed")
	}
	if pool.Submit(uuid.New()) {
		t.Error("expected submit to a full queue to fail")
	}
	if m := pool.GetMetrics(); m.QueueLength != 1 {
		t.Errorf("expected queue length 1, got %d", m.QueueLength)
	}
}

func TestWorkerPool_ProcessesSubmittedAndPendingJobs(t *testing.T) {
	env := setupTestEnv(t)
	options := imageprocessing.DefaultProcessingOptions()

	// Created before the pool starts, only the feeder can find it
	pending := env.createJob(t, testPNG(t, 5, 5), options)

	pool := NewWorkerPool(env.jobs, env.images, Options{Workers: 2, QueueSize: 10, FeedInterval: 50 * time.Millisecond})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	submitted := env.createJob(t, testPNG(t, 7, 3), options)
	pool.Submit(submitted.ID)
	pool.Submit(submitted.ID)

	waitForStatus(t, env.jobs, pending.ID, database.JobStatusCompleted)
	waitForStatus(t, env.jobs, submitted.ID, database.JobStatusCompleted)

	deadline := time.Now().Add(2 * time.Second)
	for pool.GetMetrics().SuccessJobs < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	m := pool.GetMetrics()
	if m.TotalJobs != 2 || m.SuccessJobs != 2 {
		t.Errorf("expected exactly 2 jobs run, got %+v", m)
	}
}

func TestWorkerPool_StartRecoversProcessingJobs(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job := env.createJob(t, testPNG(t, 4, 4), imageprocessing.DefaultProcessingOptions())
	if claimed, err := env.jobs.MarkProcessing(ctx, job.ID); err != nil || !claimed {
		t.Fatal("failed to mark job processing")
	}

	pool := NewWorkerPool(env.jobs, env.images, Options{FeedInterval: 50 * time.Millisecond})
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	waitForStatus(t, env.jobs, job.ID, database.JobStatusCompleted)
}

func TestWorkerPool_StopIsFinal(t *testing.T) {
	env := setupTestEnv(t)
	pool := NewWorkerPool(env.jobs, env.images, Options{})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := pool.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := pool.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
	if err := pool.Start(context.Background()); err == nil {
		t.Error("expected restarting a stopped pool to fail")
	}
}

func TestCleanup_RemovesExpiredJobsAndImages(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	pool := NewWorkerPool(env.jobs, env.images, Options{Retention: time.Hour})

	job := env.createJob(t, testPNG(t, 3, 3), imageprocessing.DefaultProcessingOptions())
	if _, ran := pool.RunJob(ctx, job.ID); !ran {
		t.Fatal("job did not run")
	}
	done, _ := env.jobs.Get(ctx, job.ID)

	database.GetDB().Model(&database.DitherJob{}).Where("id = ?", job.ID).Update("created_at", time.Now().Add(-2*time.Hour))

	if err := pool.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := env.jobs.Get(ctx, job.ID); err == nil {
		t.Error("expected expired job to be deleted")
	}
	if _, err := env.images.ReadAll(ctx, done.OutputKey); err == nil {
		t.Error("expected output image to be deleted")
	}
	if _, err := env.images.ReadAll(ctx, done.InputKey); err == nil {
		t.Error("expected input image to be deleted")
	}
}
