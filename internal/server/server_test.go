package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/pool"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type fakeSubmitter struct {
	mu      sync.Mutex
	batches [][]schemas.Request
	last    schemas.Request
}

func (f *fakeSubmitter) Submit(_ context.Context, req schemas.Request) schemas.Result {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	host, _ := orchestrator.HostOf(req.URL)
	return schemas.Result{ID: "r-1", Status: schemas.StatusSuccess, URL: req.URL, Host: host, ElapsedMS: 12, Screenshot: []byte{0xff, 0xd8}}
}

func (f *fakeSubmitter) SubmitBatch(ctx context.Context, reqs []schemas.Request) []schemas.Result {
	f.mu.Lock()
	f.batches = append(f.batches, reqs)
	f.mu.Unlock()
	out := make([]schemas.Result, len(reqs))
	for i, r := range reqs {
		out[i] = schemas.Result{URL: r.URL, Status: schemas.StatusFail, Reason: schemas.ReasonNoFormFound}
	}
	return out
}

func (f *fakeSubmitter) Stats() orchestrator.Stats {
	return orchestrator.Stats{GlobalActive: 2, GlobalPending: 3, DomainPending: map[string]int{"example.com": 1}, Domains: 4}
}

func (f *fakeSubmitter) DomainPending(host string) int {
	if host == "example.com" {
		return 1
	}
	return 0
}

type fakePool struct{}

func (fakePool) Stats() pool.Stats { return pool.Stats{Total: 2, Busy: 1, Free: 1} }

type fakeDiscoverer struct{ err error }

func (f fakeDiscoverer) Discover(_ context.Context, root string) ([]schemas.DiscoveryResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []schemas.DiscoveryResult{{URL: root + "contact", Score: 80}}, nil
}

func newServer(t *testing.T, opts ...Option) (*Server, *fakeSubmitter) {
	t.Helper()
	sub := &fakeSubmitter{}
	return New(config.ServerConfig{MaxBatch: 2}, sub, fakePool{}, zaptest.NewLogger(t), opts...), sub
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t)
	w := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, map[string]interface{}{"active": 2.0, "pending": 3.0}, body["global"])
	assert.Equal(t, 1.0, body["domains"].(map[string]interface{})["pending"].(map[string]interface{})["example.com"])
	assert.Equal(t, 1.0, body["pool"].(map[string]interface{})["busy"])
}

func TestSubmit(t *testing.T) {
	s, sub := newServer(t)
	w := do(s, http.MethodPost, "/submit", `{"url":"https://Example.com/contact","payload":{"email":"a@example.com"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "3", w.Header().Get("X-Queue-Global-Pending"))
	assert.Equal(t, "1", w.Header().Get("X-Queue-Domain-Pending"))
	assert.Equal(t, "a@example.com", sub.last.Payload.Email)

	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "example.com", body["host"])
	assert.Equal(t, 12.0, body["ms"])
	assert.Equal(t, "data:image/jpeg;base64,/9g=", body["screenshot"])
}

func TestSubmitRejectsBadInput(t *testing.T) {
	s, _ := newServer(t)
	for _, body := range []string{`not json`, `{"payload":{}}`, `{"url":"mailto:a@example.com"}`} {
		w := do(s, http.MethodPost, "/submit", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "bad_request", decode(t, w)["error"], body)
	}
}

func TestSubmitBatch(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		s, sub := newServer(t)
		w := do(s, http.MethodPost, "/submit/batch", `[{"url":"https://a.example/"},{"url":"nope"},{"url":"https://b.example/"}]`)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Equal(t, 2.0, body["count"])
		items := body["items"].([]interface{})
		require.Len(t, items, 2)
		assert.Equal(t, "https://a.example/", items[0].(map[string]interface{})["url"])
		assert.Equal(t, "no_form_found", items[1].(map[string]interface{})["reason"])
		require.Len(t, sub.batches, 1)
	})

	t.Run("items envelope", func(t *testing.T) {
		s, _ := newServer(t)
		w := do(s, http.MethodPost, "/submit/batch", `{"items":[{"url":"https://a.example/"}]}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1.0, decode(t, w)["count"])
	})

	t.Run("empty", func(t *testing.T) {
		s, _ := newServer(t)
		w := do(s, http.MethodPost, "/submit/batch", `{"items":[{"url":""}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "empty", decode(t, w)["error"])
	})

	t.Run("malformed", func(t *testing.T) {
		s, _ := newServer(t)
		w := do(s, http.MethodPost, "/submit/batch", `{"jobs":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("over the limit", func(t *testing.T) {
		s, sub := newServer(t)
		w := do(s, http.MethodPost, "/submit/batch", `[{"url":"https://a.example/"},{"url":"https://b.example/"},{"url":"https://c.example/"}]`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Empty(t, sub.batches)
	})
}

func TestDiscover(t *testing.T) {
	t.Run("disabled without a discoverer", func(t *testing.T) {
		s, _ := newServer(t)
		w := do(s, http.MethodPost, "/discover", `{"root_url":"https://example.com/"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("returns ranked pages", func(t *testing.T) {
		s, _ := newServer(t, WithDiscovery(fakeDiscoverer{}))
		w := do(s, http.MethodPost, "/discover", `{"root_url":"https://example.com/"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp schemas.DiscoverResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.ResultsTop, 1)
		assert.Equal(t, "https://example.com/contact", resp.ResultsTop[0].URL)
	})

	t.Run("upstream failure", func(t *testing.T) {
		s, _ := newServer(t, WithDiscovery(fakeDiscoverer{err: errors.New("boom")}))
		w := do(s, http.MethodPost, "/discover", `{"root_url":"https://example.com/"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("missing root", func(t *testing.T) {
		s, _ := newServer(t, WithDiscovery(fakeDiscoverer{}))
		w := do(s, http.MethodPost, "/discover", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New(config.ServerConfig{Addr: "127.0.0.1:0"}, &fakeSubmitter{}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
