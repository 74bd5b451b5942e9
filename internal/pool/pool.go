// Package pool leases isolated browser execution contexts to submission
// attempts. Contexts are reused until they hit a use limit or outlive their
// TTL, at which point they are closed and replaced.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/dom"
)

var (
	// ErrAcquireTimeout is returned when no context frees up within the
	// acquire timeout.
	ErrAcquireTimeout = errors.New("acquire_context_timeout")
	// ErrPoolClosed is returned by Acquire after Shutdown.
	ErrPoolClosed = errors.New("context pool is closed")
)

// Context is one isolated execution context, typically a browser context
// with its own cookie jar.
type Context interface {
	ID() string
	NewPage(ctx context.Context) (dom.Page, error)
	// Reset clears cookies and closes every open page.
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// Factory creates execution contexts.
type Factory interface {
	Create(ctx context.Context) (Context, error)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Total    int   `json:"total"`
	Busy     int   `json:"busy"`
	Free     int   `json:"free"`
	Created  int64 `json:"created"`
	Recycled int64 `json:"recycled"`
}

type entry struct {
	c        Context
	created  time.Time
	lastUsed time.Time
	uses     int
	busy     bool
}

// Pool is safe for concurrent use.
type Pool struct {
	factory Factory
	cfg     config.PoolConfig
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	entries  []*entry
	creating int
	created  int64
	recycled int64
	closed   bool

	// createMu keeps at most one Create call in flight.
	createMu sync.Mutex

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a pool and starts its TTL sweep.
func New(factory Factory, cfg config.PoolConfig, logger *zap.Logger) *Pool {
	if cfg.MaxContexts <= 0 {
		cfg.MaxContexts = 1
	}
	if cfg.MaxUses <= 0 {
		cfg.MaxUses = 1
	}
	if cfg.AcquirePoll <= 0 {
		cfg.AcquirePoll = 50 * time.Millisecond
	}
	p := &Pool{
		factory: factory,
		cfg:     cfg,
		logger:  logger.Named("pool"),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 && cfg.TTL > 0 {
		p.wg.Add(1)
		go p.sweepLoop()
	}
	return p
}

// Acquire leases a free context, growing the pool while it is below its
// limit. It waits up to the acquire timeout for a release otherwise.
func (p *Pool) Acquire(ctx context.Context) (Context, error) {
	var deadline <-chan time.Time
	if p.cfg.AcquireTimeout > 0 {
		t := time.NewTimer(p.cfg.AcquireTimeout)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(p.cfg.AcquirePoll)
	defer ticker.Stop()

	for {
		c, grow, err := p.take()
		if err != nil {
			return nil, err
		}
		if c != nil {
			return c, nil
		}
		if grow {
			return p.grow(ctx)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			p.logger.Warn("Timed out waiting for a free context.", zap.Duration("timeout", p.cfg.AcquireTimeout))
			return nil, ErrAcquireTimeout
		case <-ticker.C:
		}
	}
}

// take claims a free entry, or reserves a creation slot when there is room.
func (p *Pool) take() (Context, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, ErrPoolClosed
	}
	for _, e := range p.entries {
		if !e.busy {
			e.busy = true
			return e.c, false, nil
		}
	}
	if len(p.entries)+p.creating < p.cfg.MaxContexts {
		p.creating++
		return nil, true, nil
	}
	return nil, false, nil
}

// grow creates a context into a slot reserved by take and leases it.
func (p *Pool) grow(ctx context.Context) (Context, error) {
	e, err := p.create(ctx, true)
	if err != nil {
		return nil, err
	}
	return e.c, nil
}

// create fills a reserved slot. The caller must have incremented p.creating.
func (p *Pool) create(ctx context.Context, busy bool) (*entry, error) {
	p.createMu.Lock()
	c, err := p.factory.Create(ctx)
	p.createMu.Unlock()

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to create execution context: %w", err)
	}
	if p.closed {
		p.mu.Unlock()
		p.closeContext(context.Background(), c)
		return nil, ErrPoolClosed
	}
	now := p.now()
	e := &entry{c: c, created: now, lastUsed: now, busy: busy}
	p.entries = append(p.entries, e)
	p.created++
	p.mu.Unlock()

	p.logger.Debug("Created execution context.", zap.String("context_id", c.ID()))
	return e, nil
}

// Release returns a leased context. It is reset first; worn out or broken
// contexts are closed and replaced with a fresh one.
func (p *Pool) Release(ctx context.Context, c Context) {
	if c == nil {
		return
	}
	p.mu.Lock()
	e := p.lookup(c)
	p.mu.Unlock()
	if e == nil {
		p.logger.Debug("Closing context not owned by the pool.", zap.String("context_id", c.ID()))
		p.closeContext(ctx, c)
		return
	}

	resetErr := c.Reset(ctx)
	if resetErr != nil {
		p.logger.Debug("Context reset failed, recycling.", zap.String("context_id", c.ID()), zap.Error(resetErr))
	}

	p.mu.Lock()
	now := p.now()
	e.uses++
	e.lastUsed = now
	if p.closed {
		p.remove(e)
		p.mu.Unlock()
		p.closeContext(ctx, c)
		return
	}
	worn := resetErr != nil || e.uses >= p.cfg.MaxUses || (p.cfg.TTL > 0 && now.Sub(e.created) > p.cfg.TTL)
	if !worn {
		e.busy = false
		p.mu.Unlock()
		return
	}
	p.remove(e)
	p.recycled++
	p.creating++
	uses := e.uses
	p.mu.Unlock()

	p.logger.Debug("Recycling execution context.", zap.String("context_id", c.ID()), zap.Int("uses", uses))
	p.closeContext(ctx, c)
	if _, err := p.create(ctx, false); err != nil && !errors.Is(err, ErrPoolClosed) {
		p.logger.Warn("Failed to replace recycled context.", zap.Error(err))
	}
}

// Warm pre-creates up to n idle contexts without exceeding the pool limit.
func (p *Pool) Warm(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrPoolClosed
		}
		if len(p.entries)+p.creating >= p.cfg.MaxContexts {
			p.mu.Unlock()
			return nil
		}
		p.creating++
		p.mu.Unlock()
		if _, err := p.create(ctx, false); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports current pool occupancy and lifetime counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Total: len(p.entries), Created: p.created, Recycled: p.recycled}
	for _, e := range p.entries {
		if e.busy {
			s.Busy++
		}
	}
	s.Free = s.Total - s.Busy
	return s
}

// Shutdown closes every context and stops the sweep. Leased contexts are
// closed too; their later Release is a no-op close. Safe to call twice.
func (p *Pool) Shutdown(ctx context.Context) error {
	var entries []*entry
	p.closeOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		p.closed = true
		entries = p.entries
		p.entries = nil
		p.mu.Unlock()
	})
	p.wg.Wait()

	var errs []error
	for _, e := range entries {
		if err := e.c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close context %s: %w", e.c.ID(), err))
		}
	}
	if len(entries) > 0 {
		p.logger.Info("Context pool shut down.", zap.Int("closed", len(entries)))
	}
	return errors.Join(errs...)
}

func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep closes idle contexts older than twice the TTL.
func (p *Pool) sweep() {
	p.mu.Lock()
	now := p.now()
	var stale []*entry
	for _, e := range p.entries {
		if !e.busy && now.Sub(e.created) > 2*p.cfg.TTL {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		p.remove(e)
	}
	p.mu.Unlock()

	for _, e := range stale {
		p.logger.Debug("Sweeping idle context.", zap.String("context_id", e.c.ID()))
		p.closeContext(context.Background(), e.c)
	}
}

func (p *Pool) lookup(c Context) *entry {
	for _, e := range p.entries {
		if e.c == c {
			return e
		}
	}
	return nil
}

func (p *Pool) remove(e *entry) {
	for i, x := range p.entries {
		if x == e {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

func (p *Pool) closeContext(ctx context.Context, c Context) {
	if err := c.Close(ctx); err != nil {
		p.logger.Debug("Context close failed.", zap.String("context_id", c.ID()), zap.Error(err))
	}
}
