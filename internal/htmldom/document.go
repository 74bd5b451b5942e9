// Package htmldom implements dom.Page over a static HTML document parsed
// with goquery. It has no layout engine: visibility comes from attributes
// and inline styles only. It backs browser-free inspection and the tests of
// every DOM-driven component.
package htmldom

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

// RefAttr is the attribute carrying element refs.
const RefAttr = "data-fp-ref"

// Loader retrieves the HTML for a URL, returning the body and final URL.
type Loader func(ctx context.Context, url string) (body, finalURL string, err error)

// ClickHook runs after a recorded click, letting callers simulate what a
// submit does to the page.
type ClickHook func(d *Document, ref string)

// Option configures a Document.
type Option func(*Document)

// WithURL sets the initial document URL.
func WithURL(u string) Option { return func(d *Document) { d.url = u } }

// WithLoader sets the navigation loader.
func WithLoader(l Loader) Option { return func(d *Document) { d.loader = l } }

// WithClickHook installs a click hook.
func WithClickHook(h ClickHook) Option { return func(d *Document) { d.onClick = h } }

// Document is an in-memory page.
type Document struct {
	mu      sync.Mutex
	doc     *goquery.Document
	url     string
	nextRef int
	loader  Loader
	onClick ClickHook

	clicks []string
	keys   []string
	closed bool
}

var _ dom.Page = (*Document)(nil)

// Parse builds a Document from markup.
func Parse(markup string, opts ...Option) (*Document, error) {
	d := &Document{url: "about:blank"}
	for _, o := range opts {
		o(d)
	}
	if err := d.load(markup); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) load(markup string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse html: %w", err)
	}
	d.doc = doc
	d.assignRefs()
	return nil
}

func (d *Document) assignRefs() {
	d.doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr(RefAttr); !ok {
			d.nextRef++
			s.SetAttr(RefAttr, "e"+strconv.Itoa(d.nextRef))
		}
	})
}

// SetHTML replaces the whole document, keeping the URL. Click hooks use it
// to simulate a thank-you page.
func (d *Document) SetHTML(markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load(markup)
}

// SetURL changes the reported URL.
func (d *Document) SetURL(u string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = u
}

// HTML renders the current document.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, _ := d.doc.Html()
	return out
}

// Find exposes a goquery selection for assertions.
func (d *Document) Find(selector string) *goquery.Selection { return d.doc.Find(selector) }

// Clicks returns the refs clicked so far.
func (d *Document) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

// Keys returns the keys pressed so far.
func (d *Document) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

// Value returns the current value of the control ref.
func (d *Document) Value(ref string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.byRef(ref)
	if s.Length() == 0 {
		return ""
	}
	return controlValue(s)
}

// Checked reports whether the checkbox ref is checked.
func (d *Document) Checked(ref string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.byRef(ref).Attr("checked")
	return ok
}

// Closed reports whether Close was called.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Document) byRef(ref string) *goquery.Selection {
	return d.doc.Find("[" + RefAttr + "=\"" + ref + "\"]")
}

func (d *Document) mustRef(ref string) (*goquery.Selection, error) {
	s := d.byRef(ref)
	if s.Length() == 0 {
		return nil, fmt.Errorf("element %s not found", ref)
	}
	return s.First(), nil
}

// -- dom.Page --

func (d *Document) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.loader == nil {
		d.mu.Lock()
		d.url = url
		d.mu.Unlock()
		return nil
	}
	body, final, err := d.loader(ctx, url)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if final == "" {
		final = url
	}
	d.url = final
	return d.load(body)
}

func (d *Document) URL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *Document) Fill(ctx context.Context, ref, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.mustRef(ref)
	if err != nil {
		return err
	}
	if _, disabled := s.Attr("disabled"); disabled {
		return fmt.Errorf("element %s is disabled", ref)
	}
	if goquery.NodeName(s) == "textarea" {
		s.SetText(value)
	} else {
		s.SetAttr("value", value)
	}
	return nil
}

func (d *Document) Select(ctx context.Context, ref string, by dom.SelectBy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.mustRef(ref)
	if err != nil {
		return err
	}
	var hit *goquery.Selection
	s.Find("option").EachWithBreak(func(_ int, o *goquery.Selection) bool {
		if (by.Value != "" && optionValue(o) == by.Value) || (by.Label != "" && normText(o.Text()) == by.Label) {
			hit = o
			return false
		}
		return true
	})
	if hit == nil {
		return fmt.Errorf("no option matching %+v in %s", by, ref)
	}
	s.Find("option").RemoveAttr("selected")
	hit.SetAttr("selected", "selected")
	return nil
}

func (d *Document) SetChecked(ctx context.Context, ref string, checked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.mustRef(ref)
	if err != nil {
		return err
	}
	if checked {
		s.SetAttr("checked", "checked")
	} else {
		s.RemoveAttr("checked")
	}
	return nil
}

func (d *Document) Click(ctx context.Context, ref string) error {
	d.mu.Lock()
	if _, err := d.mustRef(ref); err != nil {
		d.mu.Unlock()
		return err
	}
	d.clicks = append(d.clicks, ref)
	hook := d.onClick
	d.mu.Unlock()
	if hook != nil {
		hook(d, ref)
	}
	return nil
}

func (d *Document) PressKey(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	return nil
}

func (d *Document) InjectStyle(ctx context.Context, id, css string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing := d.doc.Find("style#" + id)
	if existing.Length() > 0 {
		existing.First().SetText(css)
		return nil
	}
	target := d.doc.Find("head")
	if target.Length() == 0 {
		target = d.doc.Find("body")
	}
	if target.Length() == 0 {
		return fmt.Errorf("document has no head or body")
	}
	target.First().AppendHtml(`<style id="` + html.EscapeString(id) + `"></style>`)
	d.doc.Find("style#" + id).First().SetText(css)
	return nil
}

func (d *Document) ClickSelector(ctx context.Context, selector string) (bool, error) {
	d.mu.Lock()
	var ref string
	d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if visibility(s).visible() {
			ref, _ = s.Attr(RefAttr)
			return false
		}
		return true
	})
	d.mu.Unlock()
	if ref == "" {
		return false, nil
	}
	return true, d.Click(ctx, ref)
}

func (d *Document) RemoveSelector(ctx context.Context, selector string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.doc.Find(selector)
	n := s.Length()
	s.Remove()
	return n, nil
}

func (d *Document) WaitSettled(ctx context.Context, quiet time.Duration) error {
	return ctx.Err()
}

// Screenshot returns nothing; a static document has no rendering.
func (d *Document) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	return nil, nil
}

func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// -- helpers --

var wsRx = regexp.MustCompile(`\s+`)

func normText(s string) string { return strings.TrimSpace(wsRx.ReplaceAllString(s, " ")) }

// normLines normalizes each line of s and drops the empty ones, so text from
// separate nodes stays on separate lines.
func normLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = normText(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return normText(o.Text())
}

func controlValue(s *goquery.Selection) string {
	switch goquery.NodeName(s) {
	case "textarea":
		return s.Text()
	case "select":
		sel := s.Find("option[selected]").First()
		if sel.Length() == 0 {
			sel = s.Find("option").First()
		}
		if sel.Length() == 0 {
			return ""
		}
		return optionValue(sel)
	default:
		v, _ := s.Attr("value")
		return v
	}
}
