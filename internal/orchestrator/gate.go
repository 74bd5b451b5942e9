package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting limiter that reports how many callers are waiting.
// Waiters are admitted in FIFO order.
type Gate struct {
	sem     *semaphore.Weighted
	active  atomic.Int64
	pending atomic.Int64
}

func NewGate(n int) *Gate {
	if n <= 0 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks for a slot. The returned func releases it exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.pending.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.pending.Add(-1)
	if err != nil {
		return nil, err
	}
	g.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.active.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

func (g *Gate) Active() int  { return int(g.active.Load()) }
func (g *Gate) Pending() int { return int(g.pending.Load()) }

type domainEntry struct {
	gate     *Gate
	refs     int
	lastUsed time.Time
}

// DomainGate hands out one Gate per host, created on first use. Entries
// with no holders or waiters are dropped once idle longer than the TTL.
type DomainGate struct {
	limit int
	ttl   time.Duration
	max   int
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*domainEntry
}

func NewDomainGate(limit int, ttl time.Duration, max int) *DomainGate {
	return &DomainGate{
		limit:   limit,
		ttl:     ttl,
		max:     max,
		now:     time.Now,
		entries: make(map[string]*domainEntry),
	}
}

// Acquire waits for a slot on host's gate.
func (d *DomainGate) Acquire(ctx context.Context, host string) (func(), error) {
	d.mu.Lock()
	e, ok := d.entries[host]
	if !ok {
		e = &domainEntry{gate: NewGate(d.limit)}
		d.entries[host] = e
	}
	e.refs++
	e.lastUsed = d.now()
	if d.max > 0 && len(d.entries) > d.max {
		d.sweepLocked()
	}
	d.mu.Unlock()

	release, err := e.gate.Acquire(ctx)
	if err != nil {
		d.unref(e)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			d.unref(e)
		})
	}, nil
}

func (d *DomainGate) unref(e *domainEntry) {
	d.mu.Lock()
	e.refs--
	e.lastUsed = d.now()
	d.mu.Unlock()
}

// Pending is the number of callers waiting on host.
func (d *DomainGate) Pending(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[host]; ok {
		return e.gate.Pending()
	}
	return 0
}

// PendingAll reports waiters per host, omitting hosts with none.
func (d *DomainGate) PendingAll() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int)
	for host, e := range d.entries {
		if n := e.gate.Pending(); n > 0 {
			out[host] = n
		}
	}
	return out
}

// Len is the number of tracked hosts.
func (d *DomainGate) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Sweep drops idle entries older than the TTL and returns how many went.
func (d *DomainGate) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked()
}

func (d *DomainGate) sweepLocked() int {
	now := d.now()
	n := 0
	for host, e := range d.entries {
		if e.refs == 0 && now.Sub(e.lastUsed) > d.ttl {
			delete(d.entries, host)
			n++
		}
	}
	return n
}

// run sweeps every interval until stop is closed.
func (d *DomainGate) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.Sweep()
		}
	}
}
