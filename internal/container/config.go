// Package container provides dependency injection and lifecycle management
// for the receipt service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Vision extraction configuration
	OpenAI OpenAIConfig

	// Receipt image storage configuration
	Storage StorageConfig

	// Confidence scoring configuration
	Scoring ScoringConfig

	// Server configuration
	Server ServerConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir is the path to migration files. Empty uses the embedded set.
	MigrationsDir string
}

// OpenAIConfig holds vision extraction settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// Model is the vision model to use (e.g., "gpt-4o")
	Model string

	// MaxPages caps the PDF pages sent per receipt
	MaxPages int

	// Timeout for API calls
	Timeout time.Duration

	// PromptsPath is an optional YAML prompt file
	PromptsPath string
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// BaseDir is the root directory for receipt images
	BaseDir string
}

// ScoringConfig holds the confidence weights and the review threshold.
type ScoringConfig struct {
	Weights         validation.Weights
	ReviewThreshold int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Extraction worker settings
	ExtractionEnabled      bool
	ExtractionPollInterval time.Duration
	ExtractionBatchSize    int
	ExtractionTimeout      time.Duration

	// Day-close worker settings
	DayCloseEnabled  bool
	DayCloseAt       string
	DayCloseLocation *time.Location
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/receipts.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		OpenAI: OpenAIConfig{
			Model:    "gpt-4o",
			MaxPages: 4,
			Timeout:  90 * time.Second,
		},
		Storage: StorageConfig{
			BaseDir: "data/receipts",
		},
		Scoring: ScoringConfig{
			Weights:         validation.DefaultWeights(),
			ReviewThreshold: validation.DefaultReviewThreshold,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 20 << 20,
		},
		Worker: WorkerConfig{
			ExtractionEnabled:      true,
			ExtractionPollInterval: 10 * time.Second,
			ExtractionBatchSize:    5,
			ExtractionTimeout:      120 * time.Second,
			DayCloseEnabled:        true,
			DayCloseAt:             "23:30",
			DayCloseLocation:       time.Local,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring.weights: %w", err)
	}

	return nil
}
