package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/dom"
)

//go:embed formpilot.js
var helperJS string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// animationKiller is installed on every new document.
const animationKiller = `(() => {
  const add = () => {
    const s = document.createElement('style');
    s.textContent = '*,*::before,*::after{animation:none!important;transition:none!important}html,body{scroll-behavior:auto!important}';
    (document.head || document.documentElement).appendChild(s);
  };
  if (document.documentElement) add(); else document.addEventListener('DOMContentLoaded', add);
})();`

// Page is a chromedp tab. It implements dom.Page.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	net    *netWatch

	closeOnce sync.Once
	onClose   func()
}

var _ dom.Page = (*Page)(nil)

func openPage(ctx context.Context, tabCtx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) (*Page, error) {
	p := &Page{
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger.Named("page"),
		net:    newNetWatch(logger.Named("net"), cfg.BlockResources),
	}

	runCtx, stop := CombineContext(tabCtx, ctx)
	defer stop()
	// Creates the target before listeners are attached.
	if err := chromedp.Run(runCtx); err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	p.net.listen(tabCtx)

	actions := chromedp.Tasks{
		network.Enable(),
		page.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(helperJS).Do(ctx)
			return err
		}),
	}
	if cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(cfg.ViewportWidth, cfg.ViewportHeight, 1, false))
	}
	if cfg.DisableAnimations {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(animationKiller).Do(ctx)
			return err
		}))
	}
	if cfg.BlockResources {
		actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
		}))
	}
	if err := chromedp.Run(runCtx, actions); err != nil {
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}
	return p, nil
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, stop := CombineContext(p.ctx, ctx)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// call invokes a helper function with JSON-encoded arguments. The helper is
// re-installed first in case the document predates it.
func (p *Page) call(ctx context.Context, out interface{}, fn string, args ...interface{}) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode argument for %s: %w", fn, err)
		}
		encoded[i] = string(b)
	}
	expr := helperJS + "\nwindow.__formpilot." + fn + "(" + strings.Join(encoded, ",") + ")"
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	_, ready := p.net.mark()
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("page load error %s", errText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return p.net.waitDOMReady(ctx, ready)
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

// jsRootQuery carries a RootQuery with the submit pattern translated to a
// JavaScript RegExp source and flags.
type jsRootQuery struct {
	dom.RootQuery
	Pattern string `json:"pattern"`
	Flags   string `json:"flags"`
}

func (p *Page) FormRoots(ctx context.Context, q dom.RootQuery) ([]dom.RootInfo, error) {
	jq := jsRootQuery{RootQuery: q, Pattern: q.SubmitTextRegexp}
	if rest, ok := strings.CutPrefix(jq.Pattern, "(?i)"); ok {
		jq.Pattern, jq.Flags = rest, "i"
	}
	var out []dom.RootInfo
	if err := p.call(ctx, &out, "roots", jq); err != nil {
		return nil, fmt.Errorf("failed to collect form roots: %w", err)
	}
	return out, nil
}

func (p *Page) Form(ctx context.Context, rootRef string) (*dom.Form, error) {
	var f dom.Form
	if err := p.call(ctx, &f, "form", rootRef); err != nil {
		return nil, fmt.Errorf("failed to snapshot form %s: %w", rootRef, err)
	}
	return &f, nil
}

func (p *Page) Fill(ctx context.Context, ref, value string) error {
	var ok bool
	return p.call(ctx, &ok, "fill", ref, value)
}

func (p *Page) Select(ctx context.Context, ref string, by dom.SelectBy) error {
	var ok bool
	return p.call(ctx, &ok, "select", ref, by)
}

func (p *Page) SetChecked(ctx context.Context, ref string, checked bool) error {
	var ok bool
	return p.call(ctx, &ok, "check", ref, checked)
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Click dispatches a real mouse click at the element centre, falling back
// to a DOM click for elements inside frames or without a box.
func (p *Page) Click(ctx context.Context, ref string) error {
	var at *point
	if err := p.call(ctx, &at, "box", ref); err != nil {
		return err
	}
	if at != nil {
		err := p.run(ctx, chromedp.MouseClickXY(at.X, at.Y))
		if err == nil {
			return nil
		}
		p.logger.Debug("Mouse click failed, using DOM click.", zap.String("ref", ref), zap.Error(err))
	}
	var ok bool
	return p.call(ctx, &ok, "click", ref)
}

var keyCodes = map[string]int64{
	dom.KeyEnter:  13,
	dom.KeyEscape: 27,
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	code, ok := keyCodes[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	down := input.DispatchKeyEvent(input.KeyDown).
		WithKey(key).WithCode(key).
		WithWindowsVirtualKeyCode(code).WithNativeVirtualKeyCode(code)
	if key == dom.KeyEnter {
		down = down.WithText("\r").WithUnmodifiedText("\r")
	}
	up := input.DispatchKeyEvent(input.KeyUp).
		WithKey(key).WithCode(key).
		WithWindowsVirtualKeyCode(code).WithNativeVirtualKeyCode(code)
	return p.run(ctx, down, up)
}

func (p *Page) InjectStyle(ctx context.Context, id, css string) error {
	var ok bool
	return p.call(ctx, &ok, "injectStyle", id, css)
}

func (p *Page) ClickSelector(ctx context.Context, selector string) (bool, error) {
	var clicked bool
	err := p.call(ctx, &clicked, "clickSelector", selector)
	return clicked, err
}

func (p *Page) RemoveSelector(ctx context.Context, selector string) (int, error) {
	var n int
	err := p.call(ctx, &n, "removeSelector", selector)
	return n, err
}

func (p *Page) Signals(ctx context.Context, q dom.SignalQuery) (*dom.Signals, error) {
	var s dom.Signals
	if err := p.call(ctx, &s, "signals", q); err != nil {
		return nil, fmt.Errorf("failed to read page signals: %w", err)
	}
	return &s, nil
}

func (p *Page) WaitSettled(ctx context.Context, quiet time.Duration) error {
	return p.net.waitSettled(ctx, quiet)
}

// Screenshot captures the viewport as JPEG.
func (p *Page) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab. Safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		if n := p.net.blockedCount(); n > 0 {
			p.logger.Debug("Closing tab.", zap.Int("blocked_requests", n))
		}
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.ctx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			p.cancel()
			err = ctx.Err()
		}
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if p.onClose != nil {
			p.onClose()
		}
	})
	return err
}
