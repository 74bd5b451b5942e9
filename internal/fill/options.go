package fill

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

var (
	rxPlaceholderOption = regexp.MustCompile(`(?i)(select|choose|please|選択してください|お選び|--|—|－|未選択)`)

	// Preferred fallbacks for a category select, in order.
	rxOtherJA   = regexp.MustCompile(`(その他|そのほか)`)
	rxOtherEN   = regexp.MustCompile(`(?i)(other|others|misc|general|not\s*listed)`)
	rxInquiryOp = regexp.MustCompile(`(?i)(お問い合わせ|ご相談|inquiry|enquiry|contact|sales)`)
)

// IsPlaceholderOption reports whether an option is a "please select" entry.
func IsPlaceholderOption(o dom.Option) bool {
	label := strings.TrimSpace(o.Label)
	if label == "" || rxPlaceholderOption.MatchString(label) {
		return true
	}
	switch strings.TrimSpace(strings.ToLower(o.Value)) {
	case "", "-1", "placeholder":
		return true
	}
	return false
}

func selectable(o dom.Option) bool { return !o.Disabled && !IsPlaceholderOption(o) }

func by(o dom.Option) dom.SelectBy {
	if o.HasValue {
		return dom.SelectBy{Value: o.Value}
	}
	return dom.SelectBy{Label: o.Label}
}

// matchOption finds want by exact label or value, then by containment in
// either direction.
func matchOption(opts []dom.Option, want string) (dom.Option, bool) {
	want = strings.TrimSpace(want)
	if want == "" {
		return dom.Option{}, false
	}
	for _, o := range opts {
		if o.Disabled {
			continue
		}
		if strings.TrimSpace(o.Label) == want || o.Value == want {
			return o, true
		}
	}
	for _, o := range opts {
		if !selectable(o) {
			continue
		}
		label := strings.TrimSpace(o.Label)
		if strings.Contains(label, want) || strings.Contains(want, label) {
			return o, true
		}
	}
	return dom.Option{}, false
}

// preferOtherOrFirst picks an "other" entry, then an inquiry-like entry,
// then the first real option.
func preferOtherOrFirst(opts []dom.Option) (dom.Option, bool) {
	for _, rx := range []*regexp.Regexp{rxOtherJA, rxOtherEN, rxInquiryOp} {
		for _, o := range opts {
			if selectable(o) && rx.MatchString(o.Label) {
				return o, true
			}
		}
	}
	return firstReal(opts)
}

func firstReal(opts []dom.Option) (dom.Option, bool) {
	for _, o := range opts {
		if selectable(o) {
			return o, true
		}
	}
	return dom.Option{}, false
}

// currentIsPlaceholder reports whether the select still shows a placeholder.
func currentIsPlaceholder(c *dom.Control) bool {
	for _, o := range c.Options {
		if o.Value == c.Value {
			return IsPlaceholderOption(o)
		}
	}
	return true
}
