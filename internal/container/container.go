package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/restaurant-receipts/internal/application/dispatcher"
	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/application/service"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/worker"
	"github.com/garyjia/restaurant-receipts/pkg/database"
	"go.uber.org/zap"
)

// Container owns the receipt service's components. Start builds them in
// dependency order; Close releases them in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	extractor    port.ReceiptExtractor
	fileStorage  port.FileStorage
	dispatcher   dispatcher.Dispatcher
	services     *ServiceBundle
	workers      *worker.WorkerManager

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups the sqlite repositories.
type RepositoryBundle struct {
	Receipt port.ReceiptRepository
	History port.HistoryRepository
	Ledger  port.InventoryLedger
}

// ServiceBundle groups the application services.
type ServiceBundle struct {
	Receipt service.ReceiptService
	Export  service.ExportService
}

// HealthStatus is served by GET /health.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
	Workers    []worker.Status            `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

type startStep struct {
	name string
	run  func() error
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start opens the database, then builds the extractor, image storage,
// dispatcher and services, and finally starts the workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed.Load():
		return fmt.Errorf("container has been closed")
	case c.ready.Load():
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []startStep{
		{"database", c.initDatabase},
		{"extractor", c.initExtractor},
		{"storage", c.initStorage},
		{"dispatcher", c.initDispatcher},
		{"services", c.initServices},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close stops the workers, drains pending events and closes the database.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	if c.cancel != nil {
		c.cancel()
	}

	var closers []startStep
	if c.workers != nil {
		closers = append(closers, startStep{"workers", c.workers.StopAll})
	}
	if c.dispatcher != nil {
		closers = append(closers, startStep{"dispatcher", c.dispatcher.Close})
	}
	if c.conn != nil {
		closers = append(closers, startStep{"database", c.conn.Close})
	}

	var failed int
	for _, closer := range closers {
		if err := closer.run(); err != nil {
			failed++
			c.logger.Error("Failed to close component", zap.String("component", closer.name), zap.Error(err))
			continue
		}
		c.logger.Info("Component closed", zap.String("component", closer.name))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if failed > 0 {
		return fmt.Errorf("container closed with %d errors", failed)
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true between a successful Start and Close.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the database and reports dispatcher and worker state.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	report := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}
	missing := ComponentHealth{Message: "not initialized"}

	switch {
	case c.conn == nil:
		report("database", missing)
	default:
		if err := c.conn.Ping(); err != nil {
			report("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			report("database", ComponentHealth{Healthy: true})
		}
	}

	if c.dispatcher == nil {
		report("dispatcher", missing)
	} else {
		report("dispatcher", ComponentHealth{Healthy: true})
	}

	if c.workers == nil {
		report("workers", missing)
		return status
	}
	// every worker may be disabled in config
	count := c.workers.GetWorkerCount()
	report("workers", ComponentHealth{
		Healthy: count == 0 || c.workers.IsRunning(),
		Message: fmt.Sprintf("worker count: %d", count),
	})
	status.Workers = c.workers.Statuses()

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn, c.db = bundle.Conn, bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.conn.Close()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initExtractor() (err error) {
	c.extractor, err = ProvideExtractor(&c.config.OpenAI, c.logger)
	return err
}

func (c *Container) initStorage() (err error) {
	c.fileStorage, err = ProvideStorage(&c.config.Storage, c.logger)
	return err
}

func (c *Container) initDispatcher() (err error) {
	c.dispatcher, err = ProvideDispatcher(c.logger)
	return err
}

func (c *Container) initServices() (err error) {
	c.services, err = ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Extractor:  c.extractor,
		Storage:    c.fileStorage,
		Dispatcher: c.dispatcher,
		Scoring:    &c.config.Scoring,
		Logger:     c.logger,
	})
	return err
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Receipts:  c.services.Receipt,
		WorkerCfg: &c.config.Worker,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers
	return c.workers.StartAll(c.ctx)
}

// Services returns the application services. Nil before Start.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager. Nil before Start.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// ServiceLogger returns the container's logger in key/value form.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of
// the service, dispatcher and http packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields pairs keys with values; non-string keys and a trailing
// key without a value are dropped.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
