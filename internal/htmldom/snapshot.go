package htmldom

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

var rxOpacityZero = regexp.MustCompile(`opacity:0(\.0+)?(;|$)`)

type vis struct {
	hiddenAttr  bool
	displayNone bool
	visHidden   bool
	opacityZero bool
}

func (v vis) visible() bool { return !v.hiddenAttr && !v.displayNone && !v.visHidden }

func styleOf(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "style" {
			return strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func nodeVis(n *html.Node) vis {
	var v vis
	if hasAttr(n, "hidden") {
		v.hiddenAttr = true
	}
	st := styleOf(n)
	if strings.Contains(st, "display:none") {
		v.displayNone = true
	}
	if strings.Contains(st, "visibility:hidden") {
		v.visHidden = true
	}
	if rxOpacityZero.MatchString(st) {
		v.opacityZero = true
	}
	return v
}

// visibility folds the element and all its ancestors.
func visibility(s *goquery.Selection) vis {
	var out vis
	for _, n := range s.Nodes[:1] {
		for p := n; p != nil; p = p.Parent {
			if p.Type != html.ElementNode {
				continue
			}
			v := nodeVis(p)
			out.hiddenAttr = out.hiddenAttr || v.hiddenAttr
			out.displayNone = out.displayNone || v.displayNone
			out.visHidden = out.visHidden || v.visHidden
			out.opacityZero = out.opacityZero || v.opacityZero
		}
	}
	return out
}

// FormRoots collects explicit roots and rescue blocks. Rescue blocks that
// contain or sit inside an explicit root are ignored, and only the
// innermost qualifying block is kept.
func (d *Document) FormRoots(ctx context.Context, q dom.RootQuery) ([]dom.RootInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var submitRx *regexp.Regexp
	if q.SubmitTextRegexp != "" {
		rx, err := regexp.Compile(q.SubmitTextRegexp)
		if err != nil {
			return nil, fmt.Errorf("invalid submit text pattern: %w", err)
		}
		submitRx = rx
	}

	var out []dom.RootInfo
	seen := map[string]bool{}
	rootSel := strings.Join(q.RootSelectors, ", ")
	if rootSel != "" {
		d.doc.Find(rootSel).Each(func(_ int, s *goquery.Selection) {
			ref, _ := s.Attr(RefAttr)
			if seen[ref] {
				return
			}
			seen[ref] = true
			out = append(out, d.rootInfo(s, q, submitRx, false))
		})
	}

	if len(q.RescueSelectors) == 0 {
		return out, nil
	}
	type block struct {
		s    *goquery.Selection
		info dom.RootInfo
	}
	var rescue []block
	d.doc.Find(strings.Join(q.RescueSelectors, ", ")).Each(func(_ int, s *goquery.Selection) {
		ref, _ := s.Attr(RefAttr)
		if seen[ref] {
			return
		}
		if rootSel != "" && (s.Find(rootSel).Length() > 0 || s.ParentsFiltered(rootSel).Length() > 0) {
			return
		}
		if s.Find("input, textarea, select").Length() == 0 {
			return
		}
		rescue = append(rescue, block{s: s, info: d.rootInfo(s, q, submitRx, true)})
	})
	// A block is redundant when a descendant block has the same features.
	for i, b := range rescue {
		tightest := true
		for j, other := range rescue {
			if i == j || !sameFeatures(b.info, other.info) {
				continue
			}
			if b.s.Find("["+RefAttr+"=\""+other.info.Ref+"\"]").Length() > 0 {
				tightest = false
				break
			}
		}
		if tightest {
			out = append(out, b.info)
		}
	}
	return out, nil
}

func sameFeatures(a, b dom.RootInfo) bool {
	return a.HasEmail == b.HasEmail && a.HasTextarea == b.HasTextarea && a.HasSubmit == b.HasSubmit &&
		a.HasPassword == b.HasPassword && a.HasSearch == b.HasSearch
}

func (d *Document) rootInfo(s *goquery.Selection, q dom.RootQuery, submitRx *regexp.Regexp, rescue bool) dom.RootInfo {
	ref, _ := s.Attr(RefAttr)
	info := dom.RootInfo{Ref: ref, Rescue: rescue}
	s.Find("input").Each(func(_ int, in *goquery.Selection) {
		typ := strings.ToLower(in.AttrOr("type", "text"))
		name := strings.ToLower(in.AttrOr("name", "") + " " + in.AttrOr("id", ""))
		switch {
		case typ == "email" || (typ == "text" && strings.Contains(name, "mail")):
			info.HasEmail = true
		case typ == "password":
			info.HasPassword = true
		case typ == "search":
			info.HasSearch = true
		}
	})
	if s.Find(`[role="search"]`).Length() > 0 {
		info.HasSearch = true
	}
	info.HasTextarea = s.Find("textarea").Length() > 0
	if len(q.SubmitSelectors) > 0 && s.Find(strings.Join(q.SubmitSelectors, ", ")).Length() > 0 {
		info.HasSubmit = true
	}
	if !info.HasSubmit && submitRx != nil {
		s.Find(`button, input[type="button"], input[type="submit"]`).EachWithBreak(func(_ int, b *goquery.Selection) bool {
			if submitRx.MatchString(buttonText(b)) {
				info.HasSubmit = true
				return false
			}
			return true
		})
	}
	return info
}

func buttonText(s *goquery.Selection) string {
	if goquery.NodeName(s) == "input" {
		return s.AttrOr("value", "")
	}
	return normText(s.Text())
}

// Form snapshots the controls under rootRef.
func (d *Document) Form(ctx context.Context, rootRef string) (*dom.Form, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root, err := d.mustRef(rootRef)
	if err != nil {
		return nil, err
	}

	order := map[string]int{rootRef: 0}
	root.Find("*").Each(func(i int, s *goquery.Selection) {
		order[s.AttrOr(RefAttr, "")] = i + 1
	})

	f := &dom.Form{Root: rootRef}
	containers := map[string]bool{}
	root.Find("input, textarea, select, button").Each(func(i int, s *goquery.Selection) {
		c := d.control(s)
		c.Index = i
		for p := s.Parent(); p.Length() > 0; p = p.Parent() {
			ref := p.AttrOr(RefAttr, "")
			c.Containers = append(c.Containers, ref)
			if !containers[ref] {
				containers[ref] = true
				f.Containers = append(f.Containers, dom.Container{
					Ref:   ref,
					Order: order[ref],
					Tag:   goquery.NodeName(p),
					Class: p.AttrOr("class", ""),
					Text:  normText(p.Text()),
				})
			}
			if ref == rootRef {
				break
			}
		}
		f.Controls = append(f.Controls, c)
	})
	return f, nil
}

func (d *Document) control(s *goquery.Selection) dom.Control {
	tagName := goquery.NodeName(s)
	c := dom.Control{
		Ref:          s.AttrOr(RefAttr, ""),
		Tag:          tagName,
		Type:         strings.ToLower(s.AttrOr("type", "")),
		Name:         s.AttrOr("name", ""),
		ID:           s.AttrOr("id", ""),
		Placeholder:  s.AttrOr("placeholder", ""),
		AriaLabel:    s.AttrOr("aria-label", ""),
		Class:        s.AttrOr("class", ""),
		Autocomplete: s.AttrOr("autocomplete", ""),
		List:         s.AttrOr("list", ""),
		TabIndex:     s.AttrOr("tabindex", ""),
		AriaHidden:   s.AttrOr("aria-hidden", "") == "true",
		Value:        controlValue(s),
	}
	if tagName == "input" && c.Type == "" {
		c.Type = "text"
	}
	_, c.Disabled = s.Attr("disabled")
	_, c.Checked = s.Attr("checked")

	v := visibility(s)
	c.HiddenAttr = v.hiddenAttr
	c.DisplayNone = v.displayNone
	c.VisibilityHidden = v.visHidden
	c.NoOffsetParent = v.displayNone
	c.Visible = v.visible() && c.Type != "hidden"

	c.LabelText = d.labelFor(s)
	switch {
	case tagName == "button":
		c.Text = normText(s.Text())
	case tagName == "input" && (c.Type == "submit" || c.Type == "button" || c.Type == "reset"):
		c.Text = s.AttrOr("value", "")
	}

	switch {
	case tagName == "select":
		s.Find("option").Each(func(_ int, o *goquery.Selection) {
			_, hasValue := o.Attr("value")
			_, disabled := o.Attr("disabled")
			c.Options = append(c.Options, dom.Option{
				Value: optionValue(o), Label: normText(o.Text()), HasValue: hasValue, Disabled: disabled,
			})
		})
	case c.List != "":
		d.doc.Find(`datalist[id="` + c.List + `"] option`).Each(func(_ int, o *goquery.Selection) {
			label := o.AttrOr("label", normText(o.Text()))
			if label == "" {
				label = o.AttrOr("value", "")
			}
			c.Options = append(c.Options, dom.Option{Value: o.AttrOr("value", ""), Label: label, HasValue: true})
		})
	}
	return c
}

func (d *Document) labelFor(s *goquery.Selection) string {
	if id := s.AttrOr("id", ""); id != "" {
		if l := d.doc.Find(`label[for="` + id + `"]`); l.Length() > 0 {
			return normText(l.First().Text())
		}
	}
	if l := s.Closest("label"); l.Length() > 0 {
		return normText(l.Text())
	}
	if ids := s.AttrOr("aria-labelledby", ""); ids != "" {
		var parts []string
		for _, id := range strings.Fields(ids) {
			parts = append(parts, normText(d.doc.Find(`[id="`+id+`"]`).First().Text()))
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// Signals reads post-submit state from the static document.
func (d *Document) Signals(ctx context.Context, q dom.SignalQuery) (*dom.Signals, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sig := &dom.Signals{URL: d.url}

	var b strings.Builder
	body := d.doc.Find("body")
	if body.Length() == 0 {
		body = d.doc.Selection
	}
	for _, n := range body.Nodes {
		visibleText(n, &b)
	}
	sig.VisibleText = normLines(b.String())

	sig.SuccessSelector = d.anyVisible(q.SuccessSelectors)
	sig.ErrorSelector = d.anyVisible(q.ErrorSelectors)
	for _, sel := range q.CaptchaSelectors {
		if d.doc.Find(sel).Length() > 0 {
			sig.Captcha = true
			break
		}
	}
	if q.SubmitSelector != "" {
		d.doc.Find(q.SubmitSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if _, ok := s.Attr("disabled"); ok {
				sig.SubmitDisabled = true
				return false
			}
			return true
		})
	}
	return sig, nil
}

func (d *Document) anyVisible(selectors []string) bool {
	for _, sel := range selectors {
		found := false
		d.doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if visibility(s).visible() && normText(s.Text()) != "" {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

func visibleText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte('\n')
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "head", "textarea", "select", "option":
			return
		}
		v := nodeVis(n)
		if !v.visible() || v.opacityZero {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, b)
	}
}
