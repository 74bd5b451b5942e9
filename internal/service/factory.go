// Package service assembles the runtime components from configuration and
// tears them down in order.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/discovery"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/pool"
	"github.com/xkilldash9x/formpilot/internal/store"
)

// ComponentFactory creates the set of components a command runs on.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// FactoryOption customizes a factory.
type FactoryOption func(*concreteFactory)

// WithContextFactory replaces the browser with another source of execution
// contexts, such as a static HTML loader.
func WithContextFactory(f pool.Factory) FactoryOption {
	return func(cf *concreteFactory) { cf.contexts = f }
}

type concreteFactory struct {
	contexts pool.Factory
}

// NewComponentFactory creates a production component factory.
func NewComponentFactory(opts ...FactoryOption) ComponentFactory {
	f := &concreteFactory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds every component in dependency order. A failure part way
// shuts down whatever was already created.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Database and store, only when configured.
	if cfg.Database.URL != "" {
		dbPool, err := InitializeDatabase(ctx, cfg.Database, logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
			return nil, initializationErr
		}
		if err := dbStore.Migrate(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.Store = dbStore

		components.results = make(chan schemas.Result, resultBuffer)
		components.consumerWG = &sync.WaitGroup{}
		StartResultConsumer(ctx, components.consumerWG, components.results, dbStore, logger)
		logger.Debug("Result store initialized.")
	} else {
		logger.Info("No database configured; results will not be persisted.")
	}

	// 2. Execution contexts, backed by a lazily launched browser unless
	// overridden.
	contexts := f.contexts
	if contexts == nil {
		b := browser.New(ctx, cfg.Browser, logger)
		components.Browser = b
		contexts = browser.NewContextFactory(b, logger)
	}
	components.Pool = pool.New(contexts, cfg.Pool, logger)
	if cfg.Pool.Warm > 0 {
		if err := components.Pool.Warm(ctx, cfg.Pool.Warm); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Failed to warm context pool; contexts will be created on demand.", zap.Error(err))
		}
	}
	logger.Debug("Context pool initialized.", zap.Int("max_contexts", cfg.Pool.MaxContexts))

	// 3. Discovery client, only when configured.
	var opts []orchestrator.Option
	if cfg.Discovery.URL != "" {
		client, err := discovery.New(cfg.Discovery, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize discovery client: %w", err)
			return nil, initializationErr
		}
		components.Discovery = client
		opts = append(opts, orchestrator.WithDiscovery(client, cfg.Discovery.MinScore))
		logger.Debug("Discovery client initialized.", zap.String("url", cfg.Discovery.URL))
	}

	// 4. Submitter.
	components.Submitter = orchestrator.New(cfg.Submit, components.Pool, logger, opts...)

	logger.Info("All components initialized successfully.")
	return components, nil
}
