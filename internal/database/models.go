package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rmitchellscott/graydither/internal/imageprocessing"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobStatus is the lifecycle state of a dither job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Source types
const (
	SourceUpload = "upload"
	SourceURL    = "url"
)

// DitherJob is an asynchronous dithering request and its result
type DitherJob struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Status      JobStatus `gorm:"size:20;not null;index:idx_dither_jobs_status_created,priority:1" json:"status"`
	SourceType  string    `gorm:"size:10;not null" json:"source_type"`
	SourceURL   string    `json:"source_url,omitempty"`
	InputKey    string    `gorm:"not null" json:"-"`
	InputSHA256 string    `gorm:"size:64;index" json:"input_sha256"`

	SrcWidth  int `json:"src_width"`
	SrcHeight int `json:"src_height"`
	Width     int `json:"width"`
	Height    int `json:"height"`

	BitDepth int            `gorm:"not null" json:"bit_depth"`
	Format   string         `gorm:"size:10;not null" json:"format"`
	Options  datatypes.JSON `json:"options"` // ProcessingOptions snapshot

	OutputKey   string `json:"-"`
	OutputBytes int64  `json:"output_bytes"`
	DurationMs  int    `json:"duration_ms"`
	Error       string `gorm:"type:text" json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index:idx_dither_jobs_status_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate sets UUID if not already set
func (j *DitherJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// SetProcessingOptions stores the options snapshot along with the denormalized columns
func (j *DitherJob) SetProcessingOptions(options imageprocessing.ProcessingOptions) error {
	data, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to encode processing options: %w", err)
	}
	j.Options = datatypes.JSON(data)
	j.BitDepth = options.BitDepth
	j.Format = string(options.Format)
	if j.Format == "" {
		j.Format = string(imageprocessing.FormatPNG)
	}
	return nil
}

// ProcessingOptions decodes the options snapshot
func (j *DitherJob) ProcessingOptions() (imageprocessing.ProcessingOptions, error) {
	options := imageprocessing.DefaultProcessingOptions()
	if len(j.Options) == 0 {
		options.BitDepth = j.BitDepth
		options.Format = imageprocessing.OutputFormat(j.Format)
		return options, nil
	}
	if err := json.Unmarshal(j.Options, &options); err != nil {
		return options, fmt.Errorf("failed to decode processing options: %w", err)
	}
	return options, nil
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&DitherJob{},
	}
}
