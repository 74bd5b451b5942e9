// Package discovery talks to the contact-page discovery service, which
// ranks the pages of a site by how much they look like a contact form.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotConfigured is returned by New when no service URL is set.
	ErrNotConfigured = errors.New("discovery service url is not configured")
	// ErrServiceStatus wraps a non-2xx answer from the service.
	ErrServiceStatus = errors.New("discovery service returned an error status")
)

// Options tune one discovery call. Zero values are omitted from the request
// and fall back to the service defaults.
type Options struct {
	TopN            int
	FetchLimit      int
	Concurrency     int
	SitemapURLLimit int
}

// Client is safe for concurrent use.
type Client struct {
	cfg     config.DiscoveryConfig
	logger  *zap.Logger
	http    *resty.Client
	limiter *rate.Limiter
}

// New builds a client for the service at cfg.URL. Transport errors, 429 and
// 5xx answers are retried cfg.Retries times; calls are paced at
// cfg.RatePerSecond when it is positive.
func New(cfg config.DiscoveryConfig, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}
	logger = logger.Named("discovery")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug("Retrying discovery request.", zap.String("url", req.URL.String()), zap.Int("attempt", attempt))
		}
	}

	r := resty.NewWithClient(rc.StandardClient()).
		SetBaseURL(cfg.URL).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{cfg: cfg, logger: logger, http: r, limiter: limiter}, nil
}

func (c *Client) defaults() Options {
	return Options{
		TopN:            c.cfg.TopN,
		FetchLimit:      c.cfg.FetchLimit,
		Concurrency:     c.cfg.Concurrency,
		SitemapURLLimit: c.cfg.SitemapURLLimit,
	}
}

// Discover ranks contact pages under rootURL with the configured options.
func (c *Client) Discover(ctx context.Context, rootURL string) ([]schemas.DiscoveryResult, error) {
	return c.DiscoverWith(ctx, rootURL, c.defaults())
}

// DiscoverWith ranks contact pages under rootURL. Results that point off
// the root's site are dropped and the rest are sorted best first.
func (c *Client) DiscoverWith(ctx context.Context, rootURL string, opts Options) ([]schemas.DiscoveryResult, error) {
	scope, err := NewScope(rootURL)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var out schemas.DiscoverResponse
	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(schemas.DiscoverRequest{
			RootURL:         rootURL,
			TopN:            opts.TopN,
			FetchLimit:      opts.FetchLimit,
			Concurrency:     opts.Concurrency,
			SitemapURLLimit: opts.SitemapURLLimit,
		}).
		SetResult(&out).
		Post("/discover")
	if err != nil {
		return nil, fmt.Errorf("discovery request for %s: %w", rootURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %d %s", ErrServiceStatus, resp.StatusCode(), truncate(resp.String(), 200))
	}

	results := make([]schemas.DiscoveryResult, 0, len(out.ResultsTop))
	for _, r := range out.ResultsTop {
		if !scope.Contains(r.URL) {
			c.logger.Debug("Dropping off-site discovery result.", zap.String("url", r.URL), zap.String("site", scope.Site()))
			continue
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	fields := []zap.Field{
		zap.String("root", rootURL),
		zap.Int("results", len(results)),
		zap.Int("tried", out.Tried),
		zap.Int("fetched", out.Fetched),
		zap.Duration("took", time.Since(started)),
	}
	if out.Note != "" {
		fields = append(fields, zap.String("note", out.Note))
	}
	c.logger.Info("Discovery finished.", fields...)
	return results, nil
}

// FilterByScore keeps the results scoring at least min, preserving order.
func FilterByScore(results []schemas.DiscoveryResult, min int) []schemas.DiscoveryResult {
	out := make([]schemas.DiscoveryResult, 0, len(results))
	for _, r := range results {
		if r.Score >= min {
			out = append(out, r)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
