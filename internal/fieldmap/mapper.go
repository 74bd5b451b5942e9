// Package fieldmap assigns semantic slots to the controls of a form
// snapshot. Each slot tries an ordered chain of strategies (explicit
// attribute selectors, associated label text, nearby wrapper text) and the
// first usable control wins. A control is bound to at most one slot.
package fieldmap

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

// IsFillable reports whether a control is a plausible human-facing field.
// Hidden, off-layout, untabbable and honeypot-named controls are rejected.
func IsFillable(c *dom.Control) bool {
	if c == nil {
		return false
	}
	if !c.Visible || c.HiddenAttr || c.AriaHidden || c.DisplayNone || c.VisibilityHidden || c.NoOffsetParent {
		return false
	}
	if strings.EqualFold(c.Type, "hidden") || strings.TrimSpace(c.TabIndex) == "-1" {
		return false
	}
	return !RxHoneypot.MatchString(c.Name + " " + c.ID)
}

// Map resolves the slot assignment for one form. It never fails; a form
// with no recognizable fields yields an empty map.
func Map(f *dom.Form) FieldMap {
	m := FieldMap{}
	if f == nil {
		return m
	}
	cl := claims{}
	for _, r := range nameRules {
		r.run(f, m, cl)
	}
	resolveKana(f, m, cl)
	for _, r := range bodyRules {
		r.run(f, m, cl)
		if r.slot == SlotPhone {
			resolvePhone(f, m, cl)
		}
	}
	return m
}

func release(m FieldMap, cl claims, s Slot) {
	if c := m[s]; c != nil {
		delete(cl, c.Ref)
	}
	m.set(s, nil)
}

func bind(m FieldMap, cl claims, s Slot, c *dom.Control) {
	m.set(s, c)
	cl[c.Ref] = true
}

func kanaLike(c *dom.Control) bool {
	if !textInput(c) || !IsFillable(c) {
		return false
	}
	n := strings.ToLower(c.Name + " " + c.ID)
	if strings.Contains(n, "kana") || strings.Contains(n, "furigana") {
		return true
	}
	return strings.Contains(c.Placeholder, "カナ") || strings.Contains(c.Placeholder, "フリガナ") ||
		RxKana.MatchString(c.LabelText)
}

// resolveKana fills in the kana pair from hint text when the selector chains
// came up short. It never assigns by position: a control whose hint names
// neither half is left for the combined kana slot.
func resolveKana(f *dom.Form, m FieldMap, cl claims) {
	if !m.Has(SlotFamilyKana) || !m.Has(SlotGivenKana) {
		for i := range f.Controls {
			c := &f.Controls[i]
			if !kanaLike(c) || !cl.free(c) {
				continue
			}
			h := hint(c)
			given, family := rxGivenHint.MatchString(h), rxFamilyHint.MatchString(h)
			switch {
			case given && family:
				// Both halves named; treat as a combined field.
			case given && !m.Has(SlotGivenKana):
				bind(m, cl, SlotGivenKana, c)
			case family && !m.Has(SlotFamilyKana):
				bind(m, cl, SlotFamilyKana, c)
			}
		}
	}
	if m.Has(SlotFamilyKana) || m.Has(SlotGivenKana) {
		return
	}
	var single *dom.Control
	for i := range f.Controls {
		c := &f.Controls[i]
		if kanaLike(c) && cl.free(c) {
			if single != nil {
				return
			}
			single = c
		}
	}
	if single != nil {
		bind(m, cl, SlotKana, single)
	}
}

func telCandidate(c *dom.Control) bool {
	if !textInput(c) || !IsFillable(c) {
		return false
	}
	n := strings.ToLower(c.Name)
	return strings.EqualFold(c.Type, "tel") || strings.Contains(n, "tel") || strings.Contains(n, "phone")
}

// resolvePhone decides between one phone input and split telephone parts.
// Two or more parts win over a single phone slot; a lone part is folded back
// into phone.
func resolvePhone(f *dom.Form, m FieldMap, cl claims) {
	phone := m.Get(SlotPhone)
	var cands []*dom.Control
	for i := range f.Controls {
		c := &f.Controls[i]
		if telCandidate(c) && (cl.free(c) || c == phone) {
			cands = append(cands, c)
		}
	}

	hinted := make([]*dom.Control, len(cands))
	copy(hinted, cands)
	zeroIndexed := false
	for _, c := range cands {
		if rxZeroIndexed.MatchString(hint(c)) {
			zeroIndexed = true
		}
	}
	parts := map[Slot]*dom.Control{}
	if !zeroIndexed {
		sort.SliceStable(hinted, func(i, j int) bool { return telHint(hinted[i]) < telHint(hinted[j]) })
		for _, c := range hinted {
			h := telHint(c)
			switch {
			case parts[SlotTel1] == nil && rxTel1.MatchString(h):
				parts[SlotTel1] = c
			case parts[SlotTel2] == nil && rxTel2.MatchString(h):
				parts[SlotTel2] = c
			case parts[SlotTel3] == nil && rxTel3.MatchString(h):
				parts[SlotTel3] = c
			}
		}
	}

	if len(parts) == 0 {
		switch {
		case len(cands) == 1 && phone == nil:
			bind(m, cl, SlotPhone, cands[0])
			return
		case len(cands) >= 2:
			for i, s := range []Slot{SlotTel1, SlotTel2, SlotTel3} {
				if i < len(cands) {
					parts[s] = cands[i]
				}
			}
		}
	}

	switch len(parts) {
	case 0:
		return
	case 1:
		if phone == nil {
			for _, c := range parts {
				bind(m, cl, SlotPhone, c)
			}
		}
	default:
		release(m, cl, SlotPhone)
		for s, c := range parts {
			bind(m, cl, s, c)
		}
	}
}

func telHint(c *dom.Control) string {
	return strings.ToLower(c.Name + " " + c.ID + " " + c.Placeholder)
}
