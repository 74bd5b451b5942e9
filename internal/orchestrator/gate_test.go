package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateLimitsAndCounts(t *testing.T) {
	g := NewGate(1)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.Active())

	acquired := make(chan struct{})
	go func() {
		r, err := g.Acquire(context.Background())
		if err == nil {
			close(acquired)
			r()
		}
	}()

	require.Eventually(t, func() bool { return g.Pending() == 1 }, time.Second, time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second caller got a slot while the first held it")
	default:
	}

	release()
	release()
	<-acquired
	assert.Eventually(t, func() bool { return g.Active() == 0 && g.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestGateAcquireCanceled(t *testing.T) {
	g := NewGate(1)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, g.Pending())
}

func TestDomainGateIsolatesHosts(t *testing.T) {
	d := NewDomainGate(1, time.Minute, 100)

	ra, err := d.Acquire(context.Background(), "a.example")
	require.NoError(t, err)
	rb, err := d.Acquire(context.Background(), "b.example")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := d.Acquire(context.Background(), "a.example")
		if err == nil {
			r()
		}
	}()

	require.Eventually(t, func() bool { return d.Pending("a.example") == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, d.Pending("b.example"))
	assert.Zero(t, d.Pending("unknown.example"))
	assert.Equal(t, map[string]int{"a.example": 1}, d.PendingAll())

	ra()
	rb()
	wg.Wait()
	assert.Empty(t, d.PendingAll())
}

func TestDomainGateSweep(t *testing.T) {
	now := time.Now()
	d := NewDomainGate(1, 10*time.Minute, 1000)
	d.now = func() time.Time { return now }

	idle, err := d.Acquire(context.Background(), "idle.example")
	require.NoError(t, err)
	idle()
	busy, err := d.Acquire(context.Background(), "busy.example")
	require.NoError(t, err)
	defer busy()

	now = now.Add(5 * time.Minute)
	assert.Zero(t, d.Sweep())

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 1, d.Sweep())
	assert.Equal(t, 1, d.Len())
}

func TestDomainGateSweepsWhenOverMax(t *testing.T) {
	now := time.Now()
	d := NewDomainGate(1, time.Minute, 2)
	d.now = func() time.Time { return now }

	for _, h := range []string{"a.example", "b.example"} {
		r, err := d.Acquire(context.Background(), h)
		require.NoError(t, err)
		r()
	}
	now = now.Add(2 * time.Minute)

	r, err := d.Acquire(context.Background(), "c.example")
	require.NoError(t, err)
	defer r()
	assert.Equal(t, 1, d.Len())
}

func TestDomainGateRunStops(t *testing.T) {
	d := NewDomainGate(1, 0, 0)
	r, err := d.Acquire(context.Background(), "a.example")
	require.NoError(t, err)
	r()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		d.run(time.Millisecond, stop)
		close(done)
	}()
	require.Eventually(t, func() bool { return d.Len() == 0 }, time.Second, time.Millisecond)
	close(stop)
	<-done
}
