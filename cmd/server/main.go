package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/restaurant-receipts/internal/config"
	"github.com/garyjia/restaurant-receipts/internal/container"
	httpapi "github.com/garyjia/restaurant-receipts/internal/interfaces/http"
	"github.com/garyjia/restaurant-receipts/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting restaurant receipts service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		logger.Error("Failed to start container", zap.Error(err))
		_ = c.Close()
		os.Exit(1)
	}

	services := c.Services()
	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Host:           containerCfg.Server.Host,
			Port:           containerCfg.Server.Port,
			ReadTimeout:    containerCfg.Server.ReadTimeout,
			WriteTimeout:   containerCfg.Server.WriteTimeout,
			MaxUploadBytes: containerCfg.Server.MaxUploadBytes,
		},
		services.Receipt,
		services.Export,
		func() (bool, interface{}) {
			h := c.Health()
			return h.Overall, h
		},
		c.ServiceLogger(),
	)

	// Blocks until SIGINT/SIGTERM
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down...")
	if err := c.Close(); err != nil {
		logger.Error("Container close failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server exited successfully")
}
