package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/dom"
	"github.com/xkilldash9x/formpilot/internal/pool"
)

// ContextFactory creates isolated browser contexts (separate cookie jars
// and storage) inside a shared Browser.
type ContextFactory struct {
	browser *Browser
	logger  *zap.Logger
	mu      sync.Mutex
}

var _ pool.Factory = (*ContextFactory)(nil)

func NewContextFactory(b *Browser, logger *zap.Logger) *ContextFactory {
	return &ContextFactory{browser: b, logger: logger.Named("contexts")}
}

// Create opens a new browser context. Calls are serialized.
func (f *ContextFactory) Create(ctx context.Context) (pool.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	execCtx, cancel, err := f.browser.executor(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	id, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &ExecutionContext{
		id:      id,
		browser: f.browser,
		logger:  f.logger.With(zap.String("context_id", string(id))),
		pages:   make(map[*Page]struct{}),
	}, nil
}

// ExecutionContext is one isolated browser context and the tabs opened in
// it.
type ExecutionContext struct {
	id      cdp.BrowserContextID
	browser *Browser
	logger  *zap.Logger

	mu     sync.Mutex
	pages  map[*Page]struct{}
	closed bool
}

var _ pool.Context = (*ExecutionContext)(nil)

func (c *ExecutionContext) ID() string { return string(c.id) }

// NewPage opens a tab in this context.
func (c *ExecutionContext) NewPage(ctx context.Context) (dom.Page, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("execution context is closed")
	}
	c.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(c.browser.ctx, chromedp.WithExistingBrowserContext(c.id))
	p, err := openPage(ctx, tabCtx, cancel, c.browser.cfg, c.logger)
	if err != nil {
		cancel()
		return nil, err
	}
	p.onClose = func() {
		c.mu.Lock()
		delete(c.pages, p)
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.pages[p] = struct{}{}
	c.mu.Unlock()
	return p, nil
}

// Reset clears cookies and closes every tab.
func (c *ExecutionContext) Reset(ctx context.Context) error {
	c.closePages(ctx)
	execCtx, cancel, err := c.browser.executor(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if err := storage.ClearCookies().WithBrowserContextID(c.id).Do(execCtx); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

// Close disposes the browser context.
func (c *ExecutionContext) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.closePages(ctx)
	execCtx, cancel, err := c.browser.executor(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if err := target.DisposeBrowserContext(c.id).Do(execCtx); err != nil {
		return fmt.Errorf("failed to dispose browser context: %w", err)
	}
	c.logger.Debug("Browser context disposed.")
	return nil
}

func (c *ExecutionContext) closePages(ctx context.Context) {
	c.mu.Lock()
	pages := make([]*Page, 0, len(c.pages))
	for p := range c.pages {
		pages = append(pages, p)
	}
	c.mu.Unlock()
	for _, p := range pages {
		if err := p.Close(ctx); err != nil {
			c.logger.Debug("Page close failed.", zap.Error(err))
		}
	}
}
