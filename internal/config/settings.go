package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the service configuration
type Settings struct {
	Port      string `yaml:"port"`
	GinMode   string `yaml:"gin_mode"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	DataDir   string `yaml:"data_dir"`

	DefaultBitDepth int           `yaml:"default_bit_depth"`
	MaxUploadMB     int           `yaml:"max_upload_mb"`
	MaxSourcePixels int           `yaml:"max_source_pixels"`
	FetchTimeout    time.Duration `yaml:"-"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	ImageRetention     time.Duration `yaml:"-"`

	BlockPrivateIPs bool     `yaml:"block_private_ips"`
	BlockedDomains  []string `yaml:"blocked_domains"`

	DBType     string `yaml:"db_type"` // sqlite or postgres
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`
}

// Defaults returns the settings used when nothing is configured
func Defaults() *Settings {
	return &Settings{
		Port:               "8000",
		GinMode:            "release",
		LogLevel:           "info",
		LogFormat:          "text",
		DataDir:            "/data",
		DefaultBitDepth:    1,
		MaxUploadMB:        20,
		MaxSourcePixels:    40_000_000,
		FetchTimeout:       15 * time.Second,
		Workers:            2,
		QueueSize:          100,
		RateLimitPerMinute: 60,
		RateLimitBurst:     10,
		ImageRetention:     7 * 24 * time.Hour,
		BlockPrivateIPs:    true,
		DBType:             "sqlite",
		DBHost:             "localhost",
		DBPort:             5432,
		DBUser:             "graydither",
		DBName:             "graydither",
		DBSSLMode:          "disable",
	}
}

// Load builds the settings from the defaults, the optional YAML file named by
// CONFIG_FILE and finally the environment.
func Load() (*Settings, error) {
	return load(NewEnv())
}

func load(env *Env) (*Settings, error) {
	s := Defaults()

	if path := env.String("CONFIG_FILE", ""); path != "" {
		if err := s.loadFile(path); err != nil {
			return nil, err
		}
	}

	s.applyEnv(env)

	if err := errors.Join(env.Err(), s.Validate()); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// fileSettings reads durations as strings so "7d" style values work
type fileSettings struct {
	Settings       `yaml:",inline"`
	FetchTimeout   string `yaml:"fetch_timeout"`
	ImageRetention string `yaml:"image_retention"`
}

func (s *Settings) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	fs := fileSettings{Settings: *s}
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fs.FetchTimeout != "" {
		d, err := ParseDuration(fs.FetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid fetch_timeout %q: %w", fs.FetchTimeout, err)
		}
		fs.Settings.FetchTimeout = d
	}
	if fs.ImageRetention != "" {
		d, err := ParseDuration(fs.ImageRetention)
		if err != nil {
			return fmt.Errorf("invalid image_retention %q: %w", fs.ImageRetention, err)
		}
		fs.Settings.ImageRetention = d
	}

	*s = fs.Settings
	return nil
}

func (s *Settings) applyEnv(env *Env) {
	s.Port = env.String("PORT", s.Port)
	s.GinMode = env.String("GIN_MODE", s.GinMode)
	s.LogLevel = env.String("LOG_LEVEL", s.LogLevel)
	s.LogFormat = env.String("LOG_FORMAT", s.LogFormat)
	s.DataDir = env.String("DATA_DIR", s.DataDir)

	s.DefaultBitDepth = env.Int("DEFAULT_BIT_DEPTH", s.DefaultBitDepth)
	s.MaxUploadMB = env.Int("MAX_UPLOAD_MB", s.MaxUploadMB)
	s.MaxSourcePixels = env.Int("MAX_SOURCE_PIXELS", s.MaxSourcePixels)
	s.FetchTimeout = env.Duration("FETCH_TIMEOUT", s.FetchTimeout)

	s.Workers = env.Int("WORKERS", s.Workers)
	s.QueueSize = env.Int("QUEUE_SIZE", s.QueueSize)

	s.RateLimitPerMinute = env.Int("RATE_LIMIT_PER_MINUTE", s.RateLimitPerMinute)
	s.RateLimitBurst = env.Int("RATE_LIMIT_BURST", s.RateLimitBurst)
	s.ImageRetention = env.Duration("IMAGE_RETENTION", s.ImageRetention)

	s.BlockPrivateIPs = env.Bool("BLOCK_PRIVATE_IPS", s.BlockPrivateIPs)
	s.BlockedDomains = env.List("BLOCKED_DOMAINS", s.BlockedDomains)

	s.DBType = env.String("DB_TYPE", s.DBType)
	s.DBHost = env.String("DB_HOST", s.DBHost)
	s.DBPort = env.Int("DB_PORT", s.DBPort)
	s.DBUser = env.String("DB_USER", s.DBUser)
	s.DBPassword = env.String("DB_PASSWORD", s.DBPassword)
	s.DBName = env.String("DB_NAME", s.DBName)
	s.DBSSLMode = env.String("DB_SSLMODE", s.DBSSLMode)
}

// Validate rejects settings the service cannot run with
func (s *Settings) Validate() error {
	var errs []error

	if s.DefaultBitDepth < 1 || s.DefaultBitDepth > 8 {
		errs = append(errs, fmt.Errorf("default bit depth must be between 1 and 8, got %d", s.DefaultBitDepth))
	}
	if s.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("max upload size must be positive, got %d", s.MaxUploadMB))
	}
	if s.MaxSourcePixels <= 0 {
		errs = append(errs, fmt.Errorf("max source pixels must be positive, got %d", s.MaxSourcePixels))
	}
	if s.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive, got %s", s.FetchTimeout))
	}
	if s.Workers <= 0 {
		errs = append(errs, fmt.Errorf("worker count must be positive, got %d", s.Workers))
	}
	if s.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", s.QueueSize))
	}
	if s.RateLimitPerMinute < 0 || s.RateLimitBurst < 0 {
		errs = append(errs, fmt.Errorf("rate limits must not be negative"))
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", s.LogFormat))
	}
	switch s.DBType {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database type must be sqlite or postgres, got %q", s.DBType))
	}

	return errors.Join(errs...)
}

// MaxUploadBytes returns the upload limit in bytes
func (s *Settings) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}
