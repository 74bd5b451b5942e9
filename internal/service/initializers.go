package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/engine"
)

const (
	resultBatchSize    = 50
	resultBatchTimeout = 2 * time.Second
	resultBuffer       = 1024
)

// InitializeDatabase opens and verifies a pgx pool for cfg.URL.
func InitializeDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	logger.Debug("Database connection pool initialized.")
	return pool, nil
}

// ResultBatchSaver persists a batch of results in one round trip.
type ResultBatchSaver interface {
	SaveResults(ctx context.Context, results []schemas.Result) error
}

// StartResultConsumer launches a goroutine that reads results from the
// channel and persists them in batches. It drains the channel once it is
// closed or ctx is canceled.
func StartResultConsumer(ctx context.Context, wg *sync.WaitGroup, results <-chan schemas.Result, saver ResultBatchSaver, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting result consumer goroutine (with batching)...")
		defer logger.Info("Result consumer goroutine shut down.")

		batch := make([]schemas.Result, 0, resultBatchSize)
		ticker := time.NewTicker(resultBatchTimeout)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			logger.Debug("Persisting results batch.", zap.Int("count", len(batch)))

			// Detached so a canceled run still records what it produced.
			persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := saver.SaveResults(persistCtx, batch); err != nil {
				logger.Error("Failed to persist results batch. Data may be lost.", zap.Error(err), zap.Int("batch_size", len(batch)))
			}
			batch = batch[:0]
		}

		for {
			select {
			case r, ok := <-results:
				if !ok {
					logger.Info("Results channel closed, processing remaining batch and shutting down.")
					flush()
					return
				}
				batch = append(batch, r)
				if len(batch) >= resultBatchSize {
					flush()
					ticker.Reset(resultBatchTimeout)
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				logger.Warn("Result consumer context canceled, attempting to drain channel and process remaining batch.")
				drainChannel(results, &batch)
				flush()
				return
			}
		}
	}()
}

// drainChannel moves whatever is buffered in the channel into batch.
func drainChannel(results <-chan schemas.Result, batch *[]schemas.Result) {
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			*batch = append(*batch, r)
		default:
			return
		}
	}
}

// ResultSink returns a sink that queues results for batched persistence, or
// nil when no store is configured.
func (c *Components) ResultSink() engine.ResultSink {
	if c.results == nil {
		return nil
	}
	return engine.SinkFunc(func(ctx context.Context, r schemas.Result) error {
		select {
		case c.results <- r:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("result %s not queued: %w", r.ID, ctx.Err())
		}
	})
}
