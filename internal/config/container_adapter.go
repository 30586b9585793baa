package config

import (
	"github.com/garyjia/restaurant-receipts/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	loc, err := c.Worker.Location()
	if err != nil {
		return nil, err
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:      c.OpenAI.APIKey,
			BaseURL:     c.OpenAI.BaseURL,
			Model:       c.OpenAI.Model,
			MaxPages:    c.OpenAI.MaxPages,
			Timeout:     c.OpenAI.Timeout,
			PromptsPath: c.OpenAI.PromptsPath,
		},
		Storage: container.StorageConfig{
			BaseDir: c.Storage.BaseDir,
		},
		Scoring: container.ScoringConfig{
			Weights:         c.Scoring.Weights,
			ReviewThreshold: c.Scoring.ReviewThreshold,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			MaxUploadBytes: c.Server.MaxUploadBytes,
		},
		Worker: container.WorkerConfig{
			ExtractionEnabled:      c.Worker.ExtractionEnabled,
			ExtractionPollInterval: c.Worker.ExtractionPollInterval,
			ExtractionBatchSize:    c.Worker.ExtractionBatchSize,
			ExtractionTimeout:      c.Worker.ExtractionTimeout,
			DayCloseEnabled:        c.Worker.DayCloseEnabled,
			DayCloseAt:             c.Worker.DayCloseAt,
			DayCloseLocation:       loc,
		},
	}, nil
}
