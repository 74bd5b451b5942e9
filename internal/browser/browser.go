// Package browser drives headless Chrome through chromedp. It provides the
// execution context factory for the pool and a dom.Page implementation
// backed by a real tab.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// launchFlags keep a pooled headless Chrome light and deterministic.
var launchFlags = map[string]interface{}{
	"disable-dev-shm-usage":                 true,
	"disable-extensions":                    true,
	"disable-background-networking":         true,
	"disable-background-timer-throttling":   true,
	"disable-renderer-backgrounding":        true,
	"mute-audio":                            true,
	"no-first-run":                          true,
	"disable-features":                      "Translate,BackForwardCache,AcceptCHFrame,MediaSessionService,InterestCohort",
	"disable-blink-features":                "AutomationControlled",
}

// AllocatorOptions translates the browser config into chromedp exec
// allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.NoSandbox, chromedp.DisableGPU)
	for k, v := range launchFlags {
		opts = append(opts, chromedp.Flag(k, v))
	}
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(int(cfg.ViewportWidth), int(cfg.ViewportHeight)))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(key, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// Browser owns one Chrome process. Launch is deferred until the first
// context is requested.
type Browser struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	parent context.Context

	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	closed bool
}

// New creates a browser handle bound to parent. Cancelling parent kills the
// browser process.
func New(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Browser {
	b := &Browser{
		cfg:    cfg,
		logger: logger.Named("browser"),
		parent: parent,
	}
	b.logger.Info("Browser created (launch deferred).")
	return b
}

func (b *Browser) start() error {
	b.initOnce.Do(func() {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			b.initErr = fmt.Errorf("browser is shut down")
			return
		}

		b.logger.Info("Launching headless browser.", zap.Bool("headless", b.cfg.Headless))
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(Detach(b.parent), AllocatorOptions(b.cfg)...)
		b.ctx, b.cancel = chromedp.NewContext(b.allocCtx,
			chromedp.WithLogf(b.logger.Sugar().Debugf),
			chromedp.WithErrorf(b.logger.Sugar().Debugf),
		)
		// An empty Run starts the process and attaches to the first tab.
		if err := chromedp.Run(b.ctx); err != nil {
			b.cancel()
			b.allocCancel()
			b.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		b.logger.Info("Browser launched.")
	})
	return b.initErr
}

// executor returns a context whose CDP commands target the browser itself.
func (b *Browser) executor(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := b.start(); err != nil {
		return nil, nil, err
	}
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return nil, nil, fmt.Errorf("browser is not running")
	}
	combined, cancel := CombineContext(b.ctx, ctx)
	return cdp.WithExecutor(combined, c.Browser), cancel, nil
}

// Shutdown closes the browser gracefully, then kills the allocator.
func (b *Browser) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	// Stops a later start from launching.
	b.initOnce.Do(func() { b.initErr = fmt.Errorf("browser is shut down") })
	if b.ctx == nil {
		return nil
	}

	b.logger.Info("Shutting down browser.")
	closeCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-closeCtx.Done():
		err = fmt.Errorf("timeout closing browser: %w", closeCtx.Err())
	}
	b.cancel()
	b.allocCancel()
	if err != nil {
		b.logger.Warn("Browser did not close cleanly.", zap.Error(err))
	}
	return err
}
