package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rmitchellscott/graydither/internal/config"
	"github.com/rmitchellscott/graydither/internal/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteFile is the database file name inside the data directory
const sqliteFile = "graydither.db"

var DB *gorm.DB

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string // "sqlite" or "postgres"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	DataDir  string // For SQLite
	Debug    bool
}

// GetDatabaseConfig extracts the database section of the settings
func GetDatabaseConfig(settings *config.Settings) *DatabaseConfig {
	return &DatabaseConfig{
		Type:     settings.DBType,
		Host:     settings.DBHost,
		Port:     settings.DBPort,
		User:     settings.DBUser,
		Password: settings.DBPassword,
		DBName:   settings.DBName,
		SSLMode:  settings.DBSSLMode,
		DataDir:  settings.DataDir,
		Debug:    settings.GinMode == "debug",
	}
}

// postgresDSN builds a libpq keyword/value connection string
func (cfg *DatabaseConfig) postgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode)
}

// sqliteDSN points at the database file with a busy timeout and WAL journaling, so API
// reads do not fail while a worker is writing.
func (cfg *DatabaseConfig) sqliteDSN() string {
	return filepath.Join(cfg.DataDir, sqliteFile) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// dialector picks the gorm driver for the configured database type
func (cfg *DatabaseConfig) dialector() (gorm.Dialector, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.Open(cfg.postgresDSN()), nil
	case "sqlite", "":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.Open(cfg.sqliteDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Initialize opens the database, applies migrations and sets DB
func Initialize(cfg *DatabaseConfig) (*gorm.DB, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: getGormLogger(cfg.Debug),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialector.Name(), err)
	}

	if err := configurePool(db, dialector.Name()); err != nil {
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Picks up columns added to models since the last migration
	if err := runAutoMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
	}

	DB = db
	logging.InfoWithComponent(logging.ComponentDatabase, "Database initialized", "type", dialector.Name())
	return db, nil
}

// configurePool sizes the connection pool. SQLite allows a single writer, so it gets a
// single connection that every query queues on.
func configurePool(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return nil
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return nil
}

// runAutoMigrations runs GORM auto-migration for all models
func runAutoMigrations(db *gorm.DB) error {
	for _, model := range GetAllModels() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// gormLogWriter routes gorm's logger through the structured logger
type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, args ...interface{}) {
	logging.InfoWithComponent(logging.ComponentDatabase, fmt.Sprintf(format, args...))
}

// getGormLogger logs every statement in debug mode and only slow queries and errors otherwise
func getGormLogger(debug bool) logger.Interface {
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}

	return logger.New(gormLogWriter{}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logLevel,
		IgnoreRecordNotFoundError: true,
	})
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
