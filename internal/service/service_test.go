package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/htmldom"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

func TestMain(m *testing.M) {
	cfg := config.NewDefaultConfig()
	observability.InitializeLogger(cfg.Logger)

	code := m.Run()
	observability.Sync()
	if code == 0 {
		if err := goleak.Find(); err != nil {
			os.Stderr.WriteString("goleak: " + err.Error() + "\n")
			code = 1
		}
	}
	os.Exit(code)
}

// MockBrowserManager is a mock implementation of BrowserManager.
type MockBrowserManager struct {
	mock.Mock
}

func (m *MockBrowserManager) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSaver records every batch it is asked to persist.
type MockSaver struct {
	mock.Mock
	mu      sync.Mutex
	batches [][]schemas.Result
}

func (m *MockSaver) SaveResults(ctx context.Context, results []schemas.Result) error {
	m.mu.Lock()
	m.batches = append(m.batches, append([]schemas.Result(nil), results...))
	m.mu.Unlock()
	return m.Called(ctx, len(results)).Error(0)
}

func (m *MockSaver) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestTimedWait(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		wg := &sync.WaitGroup{}
		wg.Add(1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			wg.Done()
		}()
		assert.True(t, timedWait(wg, time.Second))
	})

	t.Run("Timeout", func(t *testing.T) {
		wg := &sync.WaitGroup{}
		wg.Add(1)
		assert.False(t, timedWait(wg, 10*time.Millisecond))
		wg.Done()
	})
}

func TestComponentsShutdown(t *testing.T) {
	browser := new(MockBrowserManager)
	browser.On("Shutdown", mock.Anything).Return(errors.New("already gone")).Once()

	saver := new(MockSaver)
	saver.On("SaveResults", mock.Anything, 2).Return(nil).Once()

	results := make(chan schemas.Result, 4)
	wg := &sync.WaitGroup{}
	StartResultConsumer(context.Background(), wg, results, saver, zaptest.NewLogger(t))

	c := &Components{Browser: browser, results: results, consumerWG: wg}
	sink := c.ResultSink()
	require.NotNil(t, sink)
	require.NoError(t, sink.Write(context.Background(), schemas.Result{ID: "a"}))
	require.NoError(t, sink.Write(context.Background(), schemas.Result{ID: "b"}))

	c.Shutdown()
	c.Shutdown()

	browser.AssertExpectations(t)
	saver.AssertExpectations(t)
	_, ok := <-results
	assert.False(t, ok, "results channel should be closed")
}

func TestResultSinkWithoutStore(t *testing.T) {
	assert.Nil(t, (&Components{}).ResultSink())
}

func TestResultSinkHonorsContext(t *testing.T) {
	c := &Components{results: make(chan schemas.Result)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.ResultSink().Write(ctx, schemas.Result{ID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartResultConsumer(t *testing.T) {
	t.Run("flushes full batches", func(t *testing.T) {
		saver := new(MockSaver)
		saver.On("SaveResults", mock.Anything, resultBatchSize).Return(nil).Once()
		saver.On("SaveResults", mock.Anything, 10).Return(nil).Once()

		results := make(chan schemas.Result, resultBatchSize+10)
		wg := &sync.WaitGroup{}
		StartResultConsumer(context.Background(), wg, results, saver, zap.NewNop())
		for range resultBatchSize + 10 {
			results <- schemas.Result{}
		}
		close(results)
		require.True(t, timedWait(wg, 5*time.Second))

		saver.AssertExpectations(t)
		assert.Equal(t, resultBatchSize+10, saver.total())
	})

	t.Run("flushes on the ticker", func(t *testing.T) {
		saver := new(MockSaver)
		flushed := make(chan struct{})
		saver.On("SaveResults", mock.Anything, 1).Return(nil).Once().Run(func(mock.Arguments) { close(flushed) })

		results := make(chan schemas.Result, 1)
		wg := &sync.WaitGroup{}
		StartResultConsumer(context.Background(), wg, results, saver, zap.NewNop())
		results <- schemas.Result{ID: "slow"}

		select {
		case <-flushed:
		case <-time.After(resultBatchTimeout + 3*time.Second):
			t.Fatal("batch was not flushed on the ticker")
		}
		close(results)
		require.True(t, timedWait(wg, 5*time.Second))
	})

	t.Run("drains on cancel and logs failures", func(t *testing.T) {
		saver := new(MockSaver)
		saver.On("SaveResults", mock.Anything, mock.Anything).Return(errors.New("db down"))

		results := make(chan schemas.Result, 3)
		for range 3 {
			results <- schemas.Result{}
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		wg := &sync.WaitGroup{}
		StartResultConsumer(ctx, wg, results, saver, zap.NewNop())
		require.True(t, timedWait(wg, 5*time.Second))
		assert.Equal(t, 3, saver.total())
	})
}

func staticConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Pool.Warm = 1
	cfg.Submit.Settle = 5 * time.Millisecond
	cfg.Submit.VerdictTimeout = 200 * time.Millisecond
	cfg.Submit.DomainSweepInterval = 0
	return cfg
}

func TestCreateStatic(t *testing.T) {
	loader := func(_ context.Context, url string) (string, string, error) {
		return `<html><body><p>会社概要</p></body></html>`, url, nil
	}
	factory := NewComponentFactory(WithContextFactory(htmldom.NewContextFactory(loader)))

	c, err := factory.Create(context.Background(), staticConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Shutdown()

	assert.Nil(t, c.Browser)
	assert.Nil(t, c.Store)
	assert.Nil(t, c.Discovery)
	assert.Nil(t, c.ResultSink())
	assert.Equal(t, 1, c.Pool.Stats().Total)

	res := c.Submitter.Submit(context.Background(), schemas.Request{URL: "https://Example.com/company"})
	assert.Equal(t, schemas.StatusFail, res.Status)
	assert.Equal(t, schemas.ReasonNoFormFound, res.Reason)
	assert.Equal(t, "example.com", res.Host)
}

func TestCreateWithDiscovery(t *testing.T) {
	cfg := staticConfig()
	cfg.Discovery.URL = "http://127.0.0.1:1"
	factory := NewComponentFactory(WithContextFactory(htmldom.NewContextFactory(nil)))

	c, err := factory.Create(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Shutdown()
	assert.NotNil(t, c.Discovery)
}

func TestCreateDatabaseFailure(t *testing.T) {
	cfg := staticConfig()
	cfg.Database.URL = "postgres://user:pass@%zz/db"
	factory := NewComponentFactory(WithContextFactory(htmldom.NewContextFactory(nil)))

	c, err := factory.Create(context.Background(), cfg, zap.NewNop())
	assert.Nil(t, c)
	assert.ErrorContains(t, err, "unable to parse PGX pool config")
}
