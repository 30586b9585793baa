package container

import (
	"fmt"

	"github.com/garyjia/restaurant-receipts/internal/application/dispatcher"
	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/application/service"
	"github.com/garyjia/restaurant-receipts/internal/domain/event"
	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/external/openai"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/storage"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/worker"
	"github.com/garyjia/restaurant-receipts/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database, runs pending migrations and wraps it
// in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	// An empty directory runs the migrations built into the binary
	if err := database.NewMigrator(conn, logger).RunMigrations(cfg.MigrationsDir); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Receipt: sqlite.NewReceiptRepository(db, logger),
		History: sqlite.NewHistoryRepository(db, logger),
		Ledger:  sqlite.NewLedgerRepository(db, logger),
	}, nil
}

// ProvideExtractor creates the vision extractor, with prompts from the
// configured YAML file or the built-in ones.
func ProvideExtractor(cfg *OpenAIConfig, logger *zap.Logger) (port.ReceiptExtractor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	prompts := openai.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = loaded
	}

	return openai.NewExtractor(openai.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		MaxPages: cfg.MaxPages,
		Timeout:  cfg.Timeout,
	}, prompts, logger), nil
}

// ProvideStorage creates the receipt image storage.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return storage.NewLocalFileStorage(cfg.BaseDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the audit log
// to every receipt event.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dispatcherLogger := &zapLoggerAdapter{logger: logger}
	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(dispatcherLogger))

	auditLog := dispatcher.AuditLogHandler(dispatcherLogger)
	for _, t := range []event.Type{
		event.TypeReceiptCaptured,
		event.TypeReceiptExtracted,
		event.TypeExtractionRejected,
		event.TypeReceiptCorrected,
		event.TypeStateChanged,
		event.TypeInventoryApplied,
		event.TypeReceiptArchived,
	} {
		disp.SubscribeNamed(t, "audit_log", auditLog)
	}

	return disp, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Extractor  port.ReceiptExtractor
	Storage    port.FileStorage
	Dispatcher dispatcher.Dispatcher
	Scoring    *ScoringConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Scoring == nil {
		return nil, fmt.Errorf("scoring config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	validator, err := ProvideValidator(deps.Scoring)
	if err != nil {
		return nil, err
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	receipts := service.NewReceiptService(
		deps.Repos.Receipt,
		deps.Repos.History,
		deps.Repos.Ledger,
		deps.TxManager,
		deps.Extractor,
		deps.Storage,
		deps.Dispatcher,
		validator,
		serviceLogger,
	)

	return &ServiceBundle{
		Receipt: receipts,
		Export:  service.NewExportService(receipts, serviceLogger),
	}, nil
}

// ProvideValidator creates the receipt validator with the configured weights.
func ProvideValidator(cfg *ScoringConfig) (*validation.Validator, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring weights: %w", err)
	}

	opts := []validation.Option{validation.WithWeights(cfg.Weights)}
	if cfg.ReviewThreshold > 0 {
		opts = append(opts, validation.WithReviewThreshold(cfg.ReviewThreshold))
	}
	return validation.NewValidator(opts...), nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Receipts  service.ReceiptService
	WorkerCfg *WorkerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates and registers the enabled background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Receipts == nil {
		return nil, fmt.Errorf("receipt service is required")
	}
	if deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.WorkerCfg.ExtractionEnabled {
		manager.Register(worker.NewExtractionWorker(worker.ExtractionWorkerConfig{
			PollInterval:   deps.WorkerCfg.ExtractionPollInterval,
			BatchSize:      deps.WorkerCfg.ExtractionBatchSize,
			ProcessTimeout: deps.WorkerCfg.ExtractionTimeout,
		}, deps.Receipts, deps.Logger))
	}

	if deps.WorkerCfg.DayCloseEnabled {
		dayClose, err := worker.NewDayCloseWorker(worker.DayCloseWorkerConfig{
			At:       deps.WorkerCfg.DayCloseAt,
			Location: deps.WorkerCfg.DayCloseLocation,
		}, deps.Receipts, deps.Logger)
		if err != nil {
			return nil, err
		}
		manager.Register(dayClose)
	}

	return manager, nil
}
