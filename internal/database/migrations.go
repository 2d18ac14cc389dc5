package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rmitchellscott/graydither/internal/logging"
	"gorm.io/gorm"
)

const statusCreatedIndex = "idx_dither_jobs_status_created"

// migrations lists schema and data changes in the order they were introduced.
// IDs are timestamps and must never be reused.
func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			// The feeder and the job list both filter by status and order by creation
			ID: "202610010000_add_dither_jobs_status_created_index",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasIndex(&DitherJob{}, statusCreatedIndex) {
					return nil
				}
				return tx.Migrator().CreateIndex(&DitherJob{}, statusCreatedIndex)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropIndex(&DitherJob{}, statusCreatedIndex)
			},
		},
		{
			ID: "202610080000_fail_jobs_without_input",
			Migrate: func(tx *gorm.DB) error {
				// Jobs queued before inputs were persisted can never run
				return tx.Model(&DitherJob{}).
					Where("status = ? AND (input_key IS NULL OR input_key = '')", JobStatusPending).
					Updates(map[string]interface{}{
						"status": JobStatusFailed,
						"error":  "input image missing",
					}).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
		{
			ID: "202610120000_backfill_dither_jobs_format",
			Migrate: func(tx *gorm.DB) error {
				return tx.Model(&DitherJob{}).
					Where("format IS NULL OR format = ''").
					Update("format", "png").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
	}
}

// RunMigrations brings the schema up to date. A fresh database gets the current schema
// in one step and every migration is recorded as applied.
func RunMigrations(db *gorm.DB) error {
	logging.InfoWithComponent(logging.ComponentDatabase, "Running database migrations")

	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	m.InitSchema(func(tx *gorm.DB) error {
		for _, model := range GetAllModels() {
			if err := tx.AutoMigrate(model); err != nil {
				return fmt.Errorf("failed to migrate %T: %w", model, err)
			}
		}
		return nil
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.InfoWithComponent(logging.ComponentDatabase, "Migrations completed", "count", len(migrations()))
	return nil
}
