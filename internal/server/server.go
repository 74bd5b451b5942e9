// Package server exposes the submitter over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/pool"
)

const shutdownTimeout = 10 * time.Second

// Submitter is the slice of the orchestrator the handlers drive.
type Submitter interface {
	Submit(ctx context.Context, req schemas.Request) schemas.Result
	SubmitBatch(ctx context.Context, reqs []schemas.Request) []schemas.Result
	Stats() orchestrator.Stats
	DomainPending(host string) int
}

// PoolStats reports context pool occupancy.
type PoolStats interface {
	Stats() pool.Stats
}

// Discoverer ranks contact pages below a root URL.
type Discoverer interface {
	Discover(ctx context.Context, rootURL string) ([]schemas.DiscoveryResult, error)
}

// Server wraps the gin router and its HTTP listener.
type Server struct {
	cfg       config.ServerConfig
	router    *gin.Engine
	logger    *zap.Logger
	submitter Submitter
	pool      PoolStats
	discovery Discoverer
}

// Option configures optional routes.
type Option func(*Server)

// WithDiscovery enables POST /discover.
func WithDiscovery(d Discoverer) Option {
	return func(s *Server) { s.discovery = d }
}

// New builds the router. p may be nil when no pool stats are available.
func New(cfg config.ServerConfig, sub Submitter, p PoolStats, logger *zap.Logger, opts ...Option) *Server {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 100
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger.Named("server"),
		submitter: sub,
		pool:      p,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))

	router.GET("/health", s.health)
	router.POST("/submit", s.submit)
	router.POST("/submit/batch", s.submitBatch)
	if s.discovery != nil {
		router.POST("/discover", s.discover)
	}
	s.router = router
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on cfg.Addr until ctx is canceled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Debug("Request handled.", fields...)
	}
}
