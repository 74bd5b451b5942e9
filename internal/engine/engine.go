// Package engine drains a feed of submission jobs through a pool of workers
// and hands every result to the configured sinks.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// persistTimeout bounds each sink write. Writes use a detached context so
// results produced during shutdown are still recorded.
const persistTimeout = 30 * time.Second

// Submitter runs one job to a terminal result.
type Submitter interface {
	Submit(ctx context.Context, req schemas.Request) schemas.Result
}

// Summary counts results by status.
type Summary struct {
	Total  int                    `json:"total"`
	Status map[schemas.Status]int `json:"status"`
}

// JobEngine manages the in-process distribution of jobs to a pool of workers.
type JobEngine struct {
	cfg       config.EngineConfig
	logger    *zap.Logger
	submitter Submitter
	sinks     []ResultSink
	limiter   *rate.Limiter
	wg        sync.WaitGroup

	stateLock sync.Mutex
	isRunning bool

	mu      sync.Mutex
	summary Summary
}

// New creates a JobEngine. Jobs are started at most cfg.RatePerSecond per
// second when that is positive.
func New(cfg config.EngineConfig, logger *zap.Logger, submitter Submitter, sinks ...ResultSink) (*JobEngine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if submitter == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &JobEngine{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "job_engine")),
		submitter: submitter,
		sinks:     sinks,
		limiter:   limiter,
		summary:   Summary{Status: make(map[schemas.Status]int)},
	}, nil
}

// Start launches the worker pool consuming jobs until the channel is closed
// or ctx is canceled.
func (e *JobEngine) Start(ctx context.Context, jobs <-chan schemas.Request) {
	e.stateLock.Lock()
	if e.isRunning {
		e.stateLock.Unlock()
		e.logger.Warn("JobEngine.Start called, but engine is already running.")
		return
	}
	e.isRunning = true
	e.stateLock.Unlock()

	concurrency := e.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	e.logger.Info("Starting job engine worker pool", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		e.wg.Add(1)
		go e.runWorker(ctx, i+1, jobs)
	}
}

// Stop waits for all workers to finish.
func (e *JobEngine) Stop() {
	e.logger.Info("Stopping job engine... waiting for workers to finish.")
	e.wg.Wait()

	e.stateLock.Lock()
	e.isRunning = false
	e.stateLock.Unlock()

	e.logger.Info("Job engine stopped gracefully.")
}

// Run feeds src through the worker pool and blocks until the source is
// exhausted and every started job has finished. The error is the source's.
func (e *JobEngine) Run(ctx context.Context, src Source) (Summary, error) {
	queue := e.cfg.QueueSize
	if queue <= 0 {
		queue = 100
	}
	jobs := make(chan schemas.Request, queue)
	e.Start(ctx, jobs)

	err := src.Run(ctx, jobs)
	close(jobs)
	e.Stop()

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return e.Summary(), err
}

// Summary returns the counts so far.
func (e *JobEngine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := Summary{Total: e.summary.Total, Status: make(map[schemas.Status]int, len(e.summary.Status))}
	for k, v := range e.summary.Status {
		out.Status[k] = v
	}
	return out
}

func (e *JobEngine) runWorker(ctx context.Context, workerID int, jobs <-chan schemas.Request) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, worker shutting down immediately.", zap.Error(ctx.Err()))
			return
		case job, ok := <-jobs:
			if !ok {
				logger.Debug("Job queue closed and drained, worker shutting down gracefully.")
				return
			}
			e.process(ctx, job, logger)
		}
	}
}

func (e *JobEngine) process(ctx context.Context, job schemas.Request, logger *zap.Logger) {
	if err := e.limiter.Wait(ctx); err != nil {
		logger.Warn("Job dropped while waiting for rate limit", zap.String("url", job.URL), zap.Error(err))
		return
	}

	res := e.submitter.Submit(ctx, job)
	logger.Info("Job finished",
		zap.String("id", res.ID),
		zap.String("url", job.URL),
		zap.String("status", string(res.Status)))

	e.mu.Lock()
	e.summary.Total++
	e.summary.Status[res.Status]++
	e.mu.Unlock()

	for _, sink := range e.sinks {
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := sink.Write(persistCtx, res)
		cancel()
		if err != nil {
			logger.Error("Failed to persist job result", zap.String("id", res.ID), zap.Error(err))
		}
	}
}
