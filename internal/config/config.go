// Package config reads the server settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	DefaultPort           = "8080"
	DefaultPredictURL     = "http://localhost:8000/api/predict"
	DefaultPredictTimeout = 30 * time.Second
	DefaultMaxUploadSize  = 10 << 20
	DefaultUploadDir      = "./uploads"
	DefaultDBPath         = "./leafcheck.db"
	DefaultMigrationsPath = "./migrations"
	DefaultTemplateDir    = "./web/templates"
	DefaultStaticDir      = "./web/static"
	DefaultSessionIdle    = 30 * time.Minute
	DefaultThumbnailSize  = 400
)

type Config struct {
	Port               string
	PredictURL         string
	PredictTimeout     time.Duration
	MaxUploadSize      int64
	UploadDir          string
	DBPath             string
	MigrationsPath     string
	TemplateDir        string
	StaticDir          string
	SessionIdleTimeout time.Duration
	HistoryEnabled     bool
	ThumbnailSize      int
}

func Default() *Config {
	return &Config{
		Port:               DefaultPort,
		PredictURL:         DefaultPredictURL,
		PredictTimeout:     DefaultPredictTimeout,
		MaxUploadSize:      DefaultMaxUploadSize,
		UploadDir:          DefaultUploadDir,
		DBPath:             DefaultDBPath,
		MigrationsPath:     DefaultMigrationsPath,
		TemplateDir:        DefaultTemplateDir,
		StaticDir:          DefaultStaticDir,
		SessionIdleTimeout: DefaultSessionIdle,
		HistoryEnabled:     true,
		ThumbnailSize:      DefaultThumbnailSize,
	}
}

// Load starts from Default and applies any environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.PredictURL = getEnv("PREDICT_URL", cfg.PredictURL)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.MigrationsPath)
	cfg.TemplateDir = getEnv("TEMPLATE_DIR", cfg.TemplateDir)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)

	var err error
	if cfg.PredictTimeout, err = getEnvDuration("PREDICT_TIMEOUT", cfg.PredictTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getEnvDuration("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxUploadSize, err = getEnvInt64("MAX_UPLOAD_SIZE", cfg.MaxUploadSize); err != nil {
		return nil, err
	}
	if cfg.HistoryEnabled, err = getEnvBool("HISTORY_ENABLED", cfg.HistoryEnabled); err != nil {
		return nil, err
	}
	size, err := getEnvInt64("THUMBNAIL_SIZE", int64(cfg.ThumbnailSize))
	if err != nil {
		return nil, err
	}
	cfg.ThumbnailSize = int(size)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	u, err := url.Parse(c.PredictURL)
	if err != nil {
		return fmt.Errorf("PREDICT_URL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("PREDICT_URL must be http or https, got %q", c.PredictURL)
	}
	if u.Host == "" {
		return fmt.Errorf("PREDICT_URL must include a host")
	}

	if c.PredictTimeout < 0 {
		return fmt.Errorf("PREDICT_TIMEOUT cannot be negative")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.ThumbnailSize <= 0 {
		return fmt.Errorf("THUMBNAIL_SIZE must be positive")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR cannot be empty")
	}
	if c.HistoryEnabled && c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required when history is enabled")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
