package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned when a job does not exist
var ErrJobNotFound = errors.New("job not found")

// JobService provides database operations for dither jobs
type JobService struct {
	db *gorm.DB
}

// NewJobService creates a new job service
func NewJobService(db *gorm.DB) *JobService {
	return &JobService{db: db}
}

// JobResult holds what a successful run records on its job
type JobResult struct {
	OutputKey   string
	OutputBytes int64
	SrcWidth    int
	SrcHeight   int
	Width       int
	Height      int
	DurationMs  int
}

// JobStats holds job counts by status
type JobStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Create inserts a new pending job
func (s *JobService) Create(ctx context.Context, job *DitherJob) error {
	job.Status = JobStatusPending
	return s.db.WithContext(ctx).Create(job).Error
}

// Get returns a job by ID
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*DitherJob, error) {
	var job DitherJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns jobs newest first, optionally filtered by status, with the total match count
func (s *JobService) List(ctx context.Context, limit, offset int, status JobStatus) ([]DitherJob, int64, error) {
	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&DitherJob{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []DitherJob
	err := query().Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	return jobs, total, err
}

// MarkProcessing claims a pending job. It reports false when another worker got there first
// or the job is no longer pending.
func (s *JobService) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&DitherJob{}).
		Where("id = ? AND status = ?", id, JobStatusPending).
		Updates(map[string]interface{}{
			"status":     JobStatusProcessing,
			"started_at": &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkCompleted records a successful run
func (s *JobService) MarkCompleted(ctx context.Context, id uuid.UUID, res JobResult) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&DitherJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       JobStatusCompleted,
			"output_key":   res.OutputKey,
			"output_bytes": res.OutputBytes,
			"src_width":    res.SrcWidth,
			"src_height":   res.SrcHeight,
			"width":        res.Width,
			"height":       res.Height,
			"duration_ms":  res.DurationMs,
			"error":        "",
			"completed_at": &now,
		}).Error
}

// MarkFailed records a failed run
func (s *JobService) MarkFailed(ctx context.Context, id uuid.UUID, message string, durationMs int) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&DitherJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       JobStatusFailed,
			"error":        message,
			"duration_ms":  durationMs,
			"completed_at": &now,
		}).Error
}

// ListPending returns the oldest pending job IDs
func (s *JobService) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&DitherJob{}).
		Where("status = ?", JobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ResetProcessing returns jobs stuck in processing to pending. Used at startup, when no
// worker can still own them.
func (s *JobService) ResetProcessing(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&DitherJob{}).
		Where("status = ?", JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":     JobStatusPending,
			"started_at": nil,
		})
	return result.RowsAffected, result.Error
}

// Stats returns job counts by status
func (s *JobService) Stats(ctx context.Context) (*JobStats, error) {
	var rows []struct {
		Status JobStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&DitherJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &JobStats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case JobStatusPending:
			stats.Pending = row.Count
		case JobStatusProcessing:
			stats.Processing = row.Count
		case JobStatusCompleted:
			stats.Completed = row.Count
		case JobStatusFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}

// Delete removes a job and returns it so its stored images can be removed too
func (s *JobService) Delete(ctx context.Context, id uuid.UUID) (*DitherJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&DitherJob{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteOlderThan removes finished jobs created before cutoff and returns them
func (s *JobService) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]DitherJob, error) {
	var jobs []DitherJob
	err := s.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff, []JobStatus{JobStatusCompleted, JobStatusFailed}).
		Find(&jobs).Error
	if err != nil || len(jobs) == 0 {
		return nil, err
	}

	ids := make([]uuid.UUID, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&DitherJob{}).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
