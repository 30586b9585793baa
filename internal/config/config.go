package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the migrations built into the binary when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// StorageConfig holds receipt image storage configuration
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// OpenAIConfig holds vision extraction configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxPages    int           `mapstructure:"max_pages"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// ScoringConfig holds the confidence weights and the review threshold
type ScoringConfig struct {
	Weights         validation.Weights `mapstructure:"weights"`
	ReviewThreshold int                `mapstructure:"review_threshold"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	ExtractionEnabled      bool          `mapstructure:"extraction_enabled"`
	ExtractionPollInterval time.Duration `mapstructure:"extraction_poll_interval"`
	ExtractionBatchSize    int           `mapstructure:"extraction_batch_size"`
	ExtractionTimeout      time.Duration `mapstructure:"extraction_timeout"`
	DayCloseEnabled        bool          `mapstructure:"day_close_enabled"`
	DayCloseAt             string        `mapstructure:"day_close_at"`
	Timezone               string        `mapstructure:"timezone"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// A .env file next to the working directory is read first when present;
// variables already set in the environment win over it.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 20<<20)

	// Database defaults
	v.SetDefault("database.path", "data/receipts.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Storage defaults
	v.SetDefault("storage.base_dir", "data/receipts")

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_pages", 4)
	v.SetDefault("openai.timeout", 90*time.Second)

	// Scoring defaults
	w := validation.DefaultWeights()
	v.SetDefault("scoring.weights.supplier", w.Supplier)
	v.SetDefault("scoring.weights.total", w.Total)
	v.SetDefault("scoring.weights.items", w.Items)
	v.SetDefault("scoring.weights.total_match", w.TotalMatch)
	v.SetDefault("scoring.weights.date", w.Date)
	v.SetDefault("scoring.review_threshold", validation.DefaultReviewThreshold)

	// Worker defaults
	v.SetDefault("worker.extraction_enabled", true)
	v.SetDefault("worker.extraction_poll_interval", 10*time.Second)
	v.SetDefault("worker.extraction_batch_size", 5)
	v.SetDefault("worker.extraction_timeout", 120*time.Second)
	v.SetDefault("worker.day_close_enabled", true)
	v.SetDefault("worker.day_close_at", "23:30")
	v.SetDefault("worker.timezone", "Local")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("database.path", "RECEIPTS_DB_PATH")
	_ = v.BindEnv("storage.base_dir", "RECEIPTS_STORAGE_DIR")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Extraction can still be triggered by hand, but only with a key
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai.model is required")
	}

	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring.weights: %w", err)
	}
	if c.Scoring.ReviewThreshold < 0 || c.Scoring.ReviewThreshold > 100 {
		return fmt.Errorf("scoring.review_threshold must be between 0 and 100, got %d", c.Scoring.ReviewThreshold)
	}

	if _, err := time.Parse("15:04", c.Worker.DayCloseAt); err != nil {
		return fmt.Errorf("worker.day_close_at must be HH:MM, got %q", c.Worker.DayCloseAt)
	}
	if _, err := c.Worker.Location(); err != nil {
		return err
	}

	return nil
}

// Location resolves the configured timezone
func (w WorkerConfig) Location() (*time.Location, error) {
	if w.Timezone == "" || w.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("worker.timezone %q: %w", w.Timezone, err)
	}
	return loc, nil
}
