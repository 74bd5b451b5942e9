package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/discovery"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/pool"
	"github.com/xkilldash9x/formpilot/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	consumerDrain   = 45 * time.Second
)

// BrowserManager is the part of the browser handle Components needs.
type BrowserManager interface {
	Shutdown(ctx context.Context) error
}

// Components holds every initialized service of a run and owns their
// lifecycle. Store, DBPool and Discovery are nil when not configured.
type Components struct {
	Browser   BrowserManager
	Pool      *pool.Pool
	Submitter *orchestrator.Submitter
	Store     *store.Store
	Discovery *discovery.Client
	DBPool    *pgxpool.Pool

	// results decouples result production from batched persistence.
	results    chan schemas.Result
	consumerWG *sync.WaitGroup
	closeOnce  sync.Once
}

// Shutdown releases everything in reverse dependency order. Safe to call
// more than once.
func (c *Components) Shutdown() {
	c.closeOnce.Do(c.shutdown)
}

func (c *Components) shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop accepting submissions and the domain sweep.
	if c.Submitter != nil {
		c.Submitter.Close()
		logger.Debug("Submitter closed.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 2. Close pooled contexts before the browser that owns them.
	if c.Pool != nil {
		if err := c.Pool.Shutdown(ctx); err != nil {
			logger.Warn("Error during context pool shutdown.", zap.Error(err))
		} else {
			logger.Debug("Context pool shut down.")
		}
	}

	if c.Browser != nil {
		if err := c.Browser.Shutdown(ctx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser shut down.")
		}
	}

	// 3. Flush results still queued for persistence.
	if c.results != nil {
		close(c.results)
		logger.Debug("Results channel closed.")
	}
	if c.consumerWG != nil {
		if !timedWait(c.consumerWG, consumerDrain) {
			logger.Warn("Result consumer did not finish draining in time. Some results may be lost.")
		} else {
			logger.Debug("Result consumer finished processing.")
		}
	}

	// 4. The database goes last so the drain above can still write.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down successfully.")
}

// timedWait waits for wg up to timeout and reports whether it finished.
func timedWait(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
