package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Mock Implementations --

// mockSubmitter records requests and answers with a status chosen per URL.
type mockSubmitter struct {
	mu       sync.Mutex
	seen     []schemas.Request
	submitFn func(ctx context.Context, req schemas.Request) schemas.Result
}

func (m *mockSubmitter) Submit(ctx context.Context, req schemas.Request) schemas.Result {
	m.mu.Lock()
	m.seen = append(m.seen, req)
	m.mu.Unlock()
	if m.submitFn != nil {
		return m.submitFn(ctx, req)
	}
	status := schemas.StatusSuccess
	if strings.Contains(req.URL, "fail") {
		status = schemas.StatusFail
	}
	return schemas.Result{ID: req.ID, URL: req.URL, Status: status}
}

func (m *mockSubmitter) urls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.seen))
	for i, r := range m.seen {
		out[i] = r.URL
	}
	return out
}

// mockSink collects results and signals each write.
type mockSink struct {
	mu        sync.Mutex
	results   []schemas.Result
	err       error
	persisted chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{persisted: make(chan struct{}, 100)}
}

func (m *mockSink) Write(ctx context.Context, r schemas.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("sink called without a deadline")
	}
	m.results = append(m.results, r)
	m.persisted <- struct{}{}
	return m.err
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func engineConfig() config.EngineConfig {
	return config.EngineConfig{WorkerConcurrency: 3, QueueSize: 4}
}

const jobs = `{"id":"a","url":"https://a.example/contact","payload":{"email":"x@example.com"}}
# comment

{"id":"b","url":"https://b.example/fail"}
not json
{"id":"c"}
{"id":"d","url":"https://d.example/"}
`

func TestNewValidates(t *testing.T) {
	_, err := New(engineConfig(), nil, &mockSubmitter{})
	assert.Error(t, err)
	_, err = New(engineConfig(), zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestRunProcessesAllJobs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sub := &mockSubmitter{}
	sink := newMockSink()
	e, err := New(engineConfig(), zap.New(core), sub, sink)
	require.NoError(t, err)

	summary, err := e.Run(context.Background(), NewReaderSource(strings.NewReader(jobs), zap.New(core)))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"https://a.example/contact", "https://b.example/fail", "https://d.example/"}, sub.urls())
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Status[schemas.StatusSuccess])
	assert.Equal(t, 1, summary.Status[schemas.StatusFail])
	assert.Equal(t, 3, sink.count())
	assert.Len(t, logs.FilterMessage("Skipping malformed job line").All(), 2)
}

func TestRunLogsSinkFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := newMockSink()
	sink.err = errors.New("disk full")
	e, err := New(engineConfig(), zap.New(core), &mockSubmitter{}, sink)
	require.NoError(t, err)

	summary, err := e.Run(context.Background(), NewReaderSource(strings.NewReader(`{"url":"https://a.example/"}`), zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Len(t, logs.FilterMessage("Failed to persist job result").All(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 10)
	sub := &mockSubmitter{submitFn: func(ctx context.Context, req schemas.Request) schemas.Result {
		started <- struct{}{}
		<-ctx.Done()
		return schemas.Result{URL: req.URL, Status: schemas.StatusError, Error: ctx.Err().Error()}
	}}
	cfg := engineConfig()
	cfg.WorkerConcurrency = 1
	e, err := New(cfg, zaptest.NewLogger(t), sub)
	require.NoError(t, err)

	var b strings.Builder
	for range 20 {
		b.WriteString(`{"url":"https://slow.example/"}` + "\n")
	}

	done := make(chan Summary)
	go func() {
		s, err := e.Run(ctx, NewReaderSource(strings.NewReader(b.String()), zap.NewNop()))
		assert.NoError(t, err)
		done <- s
	}()

	<-started
	cancel()
	select {
	case s := <-done:
		assert.Less(t, s.Total, 20)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}

func TestRunHonorsRateLimit(t *testing.T) {
	cfg := engineConfig()
	cfg.RatePerSecond = 20
	e, err := New(cfg, zaptest.NewLogger(t), &mockSubmitter{})
	require.NoError(t, err)

	var b strings.Builder
	for range 30 {
		b.WriteString(`{"url":"https://a.example/"}` + "\n")
	}
	start := time.Now()
	summary, err := e.Run(context.Background(), NewReaderSource(strings.NewReader(b.String()), zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, 30, summary.Total)
	// A burst of 20 then 10 more at 20/s.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestStartTwiceIsIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, err := New(engineConfig(), zap.New(core), &mockSubmitter{})
	require.NoError(t, err)

	ch := make(chan schemas.Request)
	e.Start(context.Background(), ch)
	e.Start(context.Background(), ch)
	close(ch)
	e.Stop()
	assert.Len(t, logs.FilterMessage("JobEngine.Start called, but engine is already running.").All(), 1)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(jobs), 0o644))

	out := make(chan schemas.Request, 10)
	require.NoError(t, NewFileSource(path, zap.NewNop()).Run(context.Background(), out))
	close(out)
	var ids []string
	for r := range out {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "d"}, ids)
	req, ok, err := parseLine([]byte(strings.Split(jobs, "\n")[0]))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x@example.com", req.Payload.Email)

	err = NewFileSource(filepath.Join(dir, "missing.jsonl"), zap.NewNop()).Run(context.Background(), out)
	assert.ErrorContains(t, err, "failed to open job file")
}

func TestTailSourceFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"first","url":"https://a.example/"}`+"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan schemas.Request, 10)
	errc := make(chan error, 1)
	go func() { errc <- NewTailSource(path, true, zaptest.NewLogger(t)).Run(ctx, out) }()

	recv := func() schemas.Request {
		select {
		case r := <-out:
			return r
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tailed job")
			return schemas.Request{}
		}
	}
	assert.Equal(t, "first", recv().ID)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n" + `{"id":"second","url":"https://b.example/"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "second", recv().ID)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestTailSourceMissingFile(t *testing.T) {
	err := NewTailSource(filepath.Join(t.TempDir(), "nope"), true, zap.NewNop()).Run(context.Background(), make(chan schemas.Request))
	assert.ErrorContains(t, err, "failed to follow job file")
}

func TestJSONLSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)
	require.NoError(t, sink.Write(context.Background(), schemas.Result{ID: "a", Status: schemas.StatusSuccess, Screenshot: []byte{0xff, 0xd8}}))
	require.NoError(t, sink.Write(context.Background(), schemas.Result{ID: "b", Status: schemas.StatusFail}))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"screenshot":"data:image/jpeg;base64,/9g="`)
	assert.Contains(t, lines[1], `"id":"b"`)
}

func TestOpenJSONLSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for _, id := range []string{"a", "b"} {
		sink, err := OpenJSONLSink(path)
		require.NoError(t, err)
		require.NoError(t, sink.Write(context.Background(), schemas.Result{ID: id}))
		require.NoError(t, sink.Close())
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

type saverFunc func(ctx context.Context, r schemas.Result) error

func (f saverFunc) SaveResult(ctx context.Context, r schemas.Result) error { return f(ctx, r) }

func TestStoreSink(t *testing.T) {
	var got string
	sink := StoreSink(saverFunc(func(_ context.Context, r schemas.Result) error {
		got = r.ID
		return nil
	}))
	require.NoError(t, sink.Write(context.Background(), schemas.Result{ID: "z"}))
	assert.Equal(t, "z", got)
}
