package browser

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// trackerHosts matches analytics, ad and telemetry endpoints that never
// matter for a form submission.
var trackerHosts = regexp.MustCompile(`(?i)\b(doubleclick|googletagmanager|google-analytics|facebook|twitter|pinterest|hotjar|mixpanel|segment|adservice|adsystem|adserver|braze|intercom|sentry|datadog|newrelic)\b`)

// blockedTypes are resource types aborted when blocking is enabled.
var blockedTypes = map[network.ResourceType]bool{
	network.ResourceTypeImage: true,
	network.ResourceTypeFont:  true,
	network.ResourceTypeMedia: true,
}

// shouldBlock decides whether a paused request is aborted.
func shouldBlock(rt network.ResourceType, url string) bool {
	return blockedTypes[rt] || trackerHosts.MatchString(url)
}

// netWatch follows the network and navigation events of one tab.
type netWatch struct {
	logger *zap.Logger
	block  bool

	mu           sync.Mutex
	inflight     map[network.RequestID]bool
	lastActivity time.Time
	navigations  uint64
	domReady     uint64
	blocked      int
}

func newNetWatch(logger *zap.Logger, block bool) *netWatch {
	return &netWatch{
		logger:       logger,
		block:        block,
		inflight:     make(map[network.RequestID]bool),
		lastActivity: time.Now(),
	}
}

// listen registers the event handlers on the tab context. Handlers run on
// the chromedp event loop, so CDP calls are pushed to goroutines.
func (w *netWatch) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			w.touch(func() { w.inflight[e.RequestID] = true })
		case *network.EventLoadingFinished:
			w.touch(func() { delete(w.inflight, e.RequestID) })
		case *network.EventLoadingFailed:
			w.touch(func() { delete(w.inflight, e.RequestID) })
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				w.touch(func() { w.navigations++ })
			}
		case *page.EventDomContentEventFired:
			w.touch(func() { w.domReady++ })
		case *fetch.EventRequestPaused:
			go w.decide(tabCtx, e)
		}
	})
}

func (w *netWatch) touch(f func()) {
	w.mu.Lock()
	f()
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *netWatch) decide(tabCtx context.Context, e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(tabCtx, c.Target)
	var err error
	if w.block && e.Request != nil && shouldBlock(e.ResourceType, e.Request.URL) {
		w.mu.Lock()
		w.blocked++
		w.mu.Unlock()
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(e.RequestID).Do(ctx)
	}
	if err != nil && tabCtx.Err() == nil {
		w.logger.Debug("Paused request could not be resolved.", zap.Error(err))
	}
}

// mark returns the navigation counters so a later wait can tell whether a
// new document arrived.
func (w *netWatch) mark() (navs, ready uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.navigations, w.domReady
}

// waitDOMReady blocks until a DOMContentLoaded newer than ready fires.
func (w *netWatch) waitDOMReady(ctx context.Context, ready uint64) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		w.mu.Lock()
		done := w.domReady > ready
		w.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitSettled returns when a navigation started after the call has reached
// DOMContentLoaded, or when no request has been in flight for quiet.
func (w *netWatch) waitSettled(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}
	navs, ready := w.mark()
	ticker := time.NewTicker(quiet / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.mu.Lock()
			navigated := w.navigations > navs && w.domReady > ready
			inflight := len(w.inflight)
			idleFor := time.Since(w.lastActivity)
			w.mu.Unlock()

			switch {
			case navigated:
				return nil
			case inflight > 0:
				w.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", inflight))
			case idleFor >= quiet:
				return nil
			}
		}
	}
}

func (w *netWatch) blockedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blocked
}
