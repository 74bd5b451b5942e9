package htmldom

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// MaxBodyBytes caps a fetched document.
const MaxBodyBytes = 5 << 20

var (
	gzipPool   = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brotliPool = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
	empty      = strings.NewReader("")
)

// decodingTransport advertises br/gzip and decodes the response body.
type decodingTransport struct {
	next http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip")
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decode(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

type pooledBody struct {
	io.Reader
	orig    io.Closer
	release func()
}

func (b *pooledBody) Close() error {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return b.orig.Close()
}

func decode(resp *http.Response) error {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return nil
	case "gzip":
		zr := gzipPool.Get().(*gzip.Reader)
		if err := zr.Reset(resp.Body); err != nil {
			gzipPool.Put(zr)
			return err
		}
		resp.Body = &pooledBody{Reader: zr, orig: resp.Body, release: func() {
			_ = zr.Reset(empty)
			gzipPool.Put(zr)
		}}
	case "br":
		br := brotliPool.Get().(*brotli.Reader)
		if err := br.Reset(resp.Body); err != nil {
			brotliPool.Put(br)
			return err
		}
		resp.Body = &pooledBody{Reader: br, orig: resp.Body, release: func() {
			_ = br.Reset(empty)
			brotliPool.Put(br)
		}}
	default:
		return fmt.Errorf("unsupported Content-Encoding: %s", enc)
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// Fetcher retrieves static pages for browser-free inspection.
type Fetcher struct {
	client    *retryablehttp.Client
	userAgent string
}

// NewFetcher builds a retrying fetcher. Transport-level errors and 5xx
// responses are retried up to retries times.
func NewFetcher(logger *zap.Logger, userAgent string, timeout time.Duration, retries int) *Fetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	rc.HTTPClient.Transport = &decodingTransport{next: http.DefaultTransport}
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug("Retrying fetch.", zap.String("url", req.URL.String()), zap.Int("attempt", attempt))
		}
	}
	return &Fetcher{client: rc, userAgent: userAgent}
}

// Fetch returns the decoded body of url and the final URL after redirects.
func (f *Fetcher) Fetch(ctx context.Context, url string) (body, finalURL string, err error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(b) > MaxBodyBytes {
		return "", "", errors.New("document exceeds size limit")
	}
	return string(b), resp.Request.URL.String(), nil
}

// Loader adapts the fetcher for Document navigation.
func (f *Fetcher) Loader() Loader {
	return func(ctx context.Context, url string) (string, string, error) { return f.Fetch(ctx, url) }
}
