package fieldmap

import (
	"regexp"
	"sort"
	"strings"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

// match is a predicate over a control snapshot, the Go analogue of a CSS
// attribute selector.
type match func(c *dom.Control) bool

func attr(c *dom.Control, name string) string {
	switch name {
	case "name":
		return c.Name
	case "id":
		return c.ID
	case "placeholder":
		return c.Placeholder
	case "aria-label":
		return c.AriaLabel
	case "type":
		return c.Type
	case "class":
		return c.Class
	case "autocomplete":
		return c.Autocomplete
	}
	return ""
}

func tag(tags ...string) match {
	return func(c *dom.Control) bool {
		for _, t := range tags {
			if strings.EqualFold(c.Tag, t) {
				return true
			}
		}
		return false
	}
}

func typeIs(t string) match {
	return func(c *dom.Control) bool { return strings.EqualFold(c.Type, t) }
}

// has is a case-insensitive substring match, like [name*=x i].
func has(name, sub string) match {
	sub = strings.ToLower(sub)
	return func(c *dom.Control) bool {
		return strings.Contains(strings.ToLower(attr(c, name)), sub)
	}
}

// is is a case-sensitive equality match, like [name=x].
func is(name, v string) match {
	return func(c *dom.Control) bool { return attr(c, name) == v }
}

func all(ms ...match) match {
	return func(c *dom.Control) bool {
		for _, m := range ms {
			if !m(c) {
				return false
			}
		}
		return true
	}
}

func either(ms ...match) match {
	return func(c *dom.Control) bool {
		for _, m := range ms {
			if m(c) {
				return true
			}
		}
		return false
	}
}

var nonTextTypes = map[string]bool{
	"checkbox": true, "radio": true, "submit": true, "button": true,
	"image": true, "reset": true, "file": true, "hidden": true,
}

var (
	textInput = func(c *dom.Control) bool {
		return strings.EqualFold(c.Tag, "input") && !nonTextTypes[strings.ToLower(c.Type)]
	}
	textarea = tag("textarea")
	selectEl = tag("select")
	checkbox = all(tag("input"), typeIs("checkbox"))
	button   = tag("button")
	submitEl = either(
		all(tag("button"), func(c *dom.Control) bool { t := strings.ToLower(c.Type); return t == "" || t == "submit" }),
		all(tag("input"), either(typeIs("submit"), typeIs("image"))),
	)
	textField = either(textInput, textarea)
	anyField  = either(textInput, textarea, selectEl)
)

// in builds a text-input selector.
func in(conds ...match) match { return all(append([]match{textInput}, conds...)...) }

// ta builds a textarea selector.
func ta(conds ...match) match { return all(append([]match{textarea}, conds...)...) }

// sel builds a select selector.
func sel(conds ...match) match { return all(append([]match{selectEl}, conds...)...) }

// claims tracks controls already bound to a slot so no two slots alias.
type claims map[string]bool

func (cl claims) free(c *dom.Control) bool { return c != nil && !cl[c.Ref] }

// strategy locates a control for one slot.
type strategy func(f *dom.Form, cl claims) *dom.Control

func usable(c *dom.Control, cl claims) bool { return cl.free(c) && IsFillable(c) }

// bySelectors tries each selector in order, taking the first usable control
// in document order.
func bySelectors(sels ...match) strategy {
	return func(f *dom.Form, cl claims) *dom.Control {
		for _, s := range sels {
			for i := range f.Controls {
				c := &f.Controls[i]
				if s(c) && usable(c, cl) {
					return c
				}
			}
		}
		return nil
	}
}

// byLabel matches the associated label text, falling back to aria-label.
func byLabel(rx *regexp.Regexp, filter match) strategy {
	return func(f *dom.Form, cl claims) *dom.Control {
		for i := range f.Controls {
			c := &f.Controls[i]
			if !filter(c) || !usable(c, cl) {
				continue
			}
			if (c.LabelText != "" && rx.MatchString(c.LabelText)) || (c.AriaLabel != "" && rx.MatchString(c.AriaLabel)) {
				return c
			}
		}
		return nil
	}
}

// byText matches button captions.
func byText(rx *regexp.Regexp, filter match) strategy {
	return func(f *dom.Form, cl claims) *dom.Control {
		for i := range f.Controls {
			c := &f.Controls[i]
			if filter(c) && usable(c, cl) && rx.MatchString(c.Text) {
				return c
			}
		}
		return nil
	}
}

type wrapper struct {
	class string
	tag   string
}

var wrappers = []wrapper{
	{class: "form-group"}, {class: "field"}, {class: "form-item"}, {class: "c-form__item"},
	{class: "mktoFormRow"}, {class: "hs-form-field"}, {class: "wpforms-field"},
	{tag: "li"}, {tag: "div"}, {tag: "section"},
}

func (w wrapper) matches(c dom.Container) bool {
	if w.class != "" {
		return c.HasClass(w.class)
	}
	return strings.EqualFold(c.Tag, w.tag)
}

// byNearby walks wrapper blocks whose text matches rx and takes the first
// usable control inside. Within one wrapper kind the tightest block wins, so
// an outer div holding the whole form is only a last resort.
func byNearby(rx *regexp.Regexp, filter match) strategy {
	return func(f *dom.Form, cl claims) *dom.Control {
		for _, w := range wrappers {
			var hits []dom.Container
			for _, ct := range f.Containers {
				if w.matches(ct) && rx.MatchString(ct.Text) {
					hits = append(hits, ct)
				}
			}
			sort.SliceStable(hits, func(i, j int) bool {
				if len(hits[i].Text) != len(hits[j].Text) {
					return len(hits[i].Text) < len(hits[j].Text)
				}
				return hits[i].Order < hits[j].Order
			})
			for _, ct := range hits {
				for i := range f.Controls {
					c := &f.Controls[i]
					if inside(c, ct.Ref) && filter(c) && usable(c, cl) {
						return c
					}
				}
			}
		}
		return nil
	}
}

func inside(c *dom.Control, containerRef string) bool {
	for _, r := range c.Containers {
		if r == containerRef {
			return true
		}
	}
	return false
}

func hint(c *dom.Control) string {
	return strings.ToLower(strings.Join([]string{c.Name, c.ID, c.Placeholder, c.AriaLabel, c.LabelText}, " "))
}
