package fieldmap

import (
	"fmt"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

type ctlOpt func(*dom.Control)

func withLabel(s string) ctlOpt       { return func(c *dom.Control) { c.LabelText = s } }
func withPlaceholder(s string) ctlOpt { return func(c *dom.Control) { c.Placeholder = s } }
func withID(s string) ctlOpt          { return func(c *dom.Control) { c.ID = s } }
func withText(s string) ctlOpt        { return func(c *dom.Control) { c.Text = s } }
func inContainer(refs ...string) ctlOpt {
	return func(c *dom.Control) { c.Containers = refs }
}
func hidden() ctlOpt { return func(c *dom.Control) { c.Visible = false; c.DisplayNone = true } }

func ctl(ref, tagName, typ, name string, opts ...ctlOpt) dom.Control {
	c := dom.Control{Ref: ref, Tag: tagName, Type: typ, Name: name, Visible: true}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func form(controls ...dom.Control) *dom.Form {
	for i := range controls {
		controls[i].Index = i
	}
	return &dom.Form{Root: "root", Controls: controls}
}

func TestIsFillable(t *testing.T) {
	tests := []struct {
		name string
		c    dom.Control
		want bool
	}{
		{"plain text input", ctl("a", "input", "text", "email"), true},
		{"honeypot prefix", ctl("a", "input", "text", "hp_email"), false},
		{"honeypot word", ctl("a", "input", "text", "my_honeypot"), false},
		{"url field", ctl("a", "input", "text", "website_url"), false},
		{"confirm suffix", ctl("a", "input", "text", "email_confirm"), false},
		{"hidden type", ctl("a", "input", "hidden", "token"), false},
		{"display none", ctl("a", "input", "text", "email", hidden()), false},
		{"untabbable", ctl("a", "input", "text", "email", func(c *dom.Control) { c.TabIndex = "-1" }), false},
		{"aria hidden", ctl("a", "input", "text", "email", func(c *dom.Control) { c.AriaHidden = true }), false},
		{"no offset parent", ctl("a", "input", "text", "email", func(c *dom.Control) { c.NoOffsetParent = true }), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFillable(&tt.c))
		})
	}
	assert.False(t, IsFillable(nil))
}

func TestMapContactForm7(t *testing.T) {
	f := form(
		ctl("n", "input", "text", "your-name", withLabel("お名前")),
		ctl("e", "input", "email", "your-email", withLabel("メールアドレス")),
		ctl("m", "textarea", "", "your-message", withLabel("お問い合わせ内容")),
		ctl("s", "input", "submit", "", withText("送信")),
	)
	m := Map(f)

	want := map[Slot]string{SlotName: "n", SlotEmail: "e", SlotMessage: "m", SlotSubmit: "s"}
	if diff := cmp.Diff(want, m.Refs()); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, m.HasCore())
}

func TestMapSkipsHoneypot(t *testing.T) {
	f := form(
		ctl("trap", "input", "email", "hp_email"),
		ctl("real", "input", "email", "email"),
		ctl("m", "textarea", "", "body"),
		ctl("s", "button", "submit", "", withText("Send")),
	)
	m := Map(f)
	require.True(t, m.Has(SlotEmail))
	assert.Equal(t, "real", m.Get(SlotEmail).Ref)
}

func TestMapNoControlAliasesTwoSlots(t *testing.T) {
	f := form(
		ctl("e", "input", "email", "email", withLabel("Email confirm")),
		ctl("m", "textarea", "", "message"),
	)
	m := Map(f)
	seen := map[string]Slot{}
	for s, ref := range m.Refs() {
		if prev, ok := seen[ref]; ok {
			t.Fatalf("control %s bound to both %s and %s", ref, prev, s)
		}
		seen[ref] = s
	}
	assert.Equal(t, "e", m.Get(SlotEmail).Ref)
	assert.False(t, m.Has(SlotEmailConfirm))
}

func TestMapSplitNamesAndKana(t *testing.T) {
	f := form(
		ctl("sei", "input", "text", "sei", withLabel("姓")),
		ctl("mei", "input", "text", "mei", withLabel("名")),
		ctl("sk", "input", "text", "sei_kana", withLabel("セイ")),
		ctl("mk", "input", "text", "mei_kana", withLabel("メイ")),
		ctl("e", "input", "email", "email"),
	)
	m := Map(f)
	assert.Equal(t, "sei", m.Get(SlotFamilyName).Ref)
	assert.Equal(t, "mei", m.Get(SlotGivenName).Ref)
	assert.Equal(t, "sk", m.Get(SlotFamilyKana).Ref)
	assert.Equal(t, "mk", m.Get(SlotGivenKana).Ref)
	assert.False(t, m.Has(SlotName), "full name must not be guessed when the pair is present")
}

func TestMapKanaFromHints(t *testing.T) {
	f := form(
		ctl("k1", "input", "text", "kana_last"),
		ctl("k2", "input", "text", "kana_first"),
	)
	m := Map(f)
	assert.Equal(t, "k1", m.Get(SlotFamilyKana).Ref)
	assert.Equal(t, "k2", m.Get(SlotGivenKana).Ref)
}

func TestMapKanaWithoutHintsIsNotGuessed(t *testing.T) {
	f := form(ctl("k", "input", "text", "furigana"))
	m := Map(f)
	assert.False(t, m.Has(SlotFamilyKana))
	assert.False(t, m.Has(SlotGivenKana))
	assert.Equal(t, "k", m.Get(SlotKana).Ref)

	f = form(ctl("a", "input", "text", "kana_a"), ctl("b", "input", "text", "kana_b"))
	m = Map(f)
	assert.False(t, m.Has(SlotFamilyKana))
	assert.False(t, m.Has(SlotGivenKana))
	assert.False(t, m.Has(SlotKana))
}

func TestMapPhone(t *testing.T) {
	t.Run("single input", func(t *testing.T) {
		m := Map(form(ctl("p", "input", "tel", "tel")))
		assert.Equal(t, "p", m.Get(SlotPhone).Ref)
		assert.False(t, m.Has(SlotTel1))
	})

	t.Run("three ordinal parts", func(t *testing.T) {
		m := Map(form(
			ctl("a", "input", "tel", "tel1"),
			ctl("b", "input", "tel", "tel2"),
			ctl("c", "input", "tel", "tel3"),
		))
		assert.False(t, m.Has(SlotPhone), "parts win over a single phone slot")
		assert.Equal(t, "a", m.Get(SlotTel1).Ref)
		assert.Equal(t, "b", m.Get(SlotTel2).Ref)
		assert.Equal(t, "c", m.Get(SlotTel3).Ref)
	})

	t.Run("unhinted parts are positional", func(t *testing.T) {
		m := Map(form(
			ctl("a", "input", "tel", "tel[]"),
			ctl("b", "input", "tel", "tel[]"),
			ctl("c", "input", "tel", "tel[]"),
		))
		assert.False(t, m.Has(SlotPhone))
		assert.Equal(t, "a", m.Get(SlotTel1).Ref)
		assert.Equal(t, "b", m.Get(SlotTel2).Ref)
		assert.Equal(t, "c", m.Get(SlotTel3).Ref)
	})

	t.Run("zero indexed parts are positional", func(t *testing.T) {
		m := Map(form(
			ctl("a", "input", "text", "tel[0]"),
			ctl("b", "input", "text", "tel[1]"),
			ctl("c", "input", "text", "tel[2]"),
		))
		assert.Equal(t, "a", m.Get(SlotTel1).Ref)
		assert.Equal(t, "b", m.Get(SlotTel2).Ref)
		assert.Equal(t, "c", m.Get(SlotTel3).Ref)
	})

	t.Run("lone part folds into phone", func(t *testing.T) {
		m := Map(form(ctl("a", "input", "text", "tel_1")))
		assert.Equal(t, "a", m.Get(SlotPhone).Ref)
		assert.False(t, m.Has(SlotTel1))
	})
}

func TestMapNearbyPrefersTightestWrapper(t *testing.T) {
	f := &dom.Form{
		Root: "root",
		Containers: []dom.Container{
			{Ref: "outer", Order: 0, Tag: "div", Text: "会社名 部署 ご担当者"},
			{Ref: "g1", Order: 1, Tag: "div", Class: "form-group", Text: "部署"},
			{Ref: "g2", Order: 2, Tag: "div", Class: "form-group", Text: "会社名"},
		},
		Controls: []dom.Control{
			ctl("dept", "input", "text", "f1", inContainer("g1", "outer")),
			ctl("co", "input", "text", "f2", inContainer("g2", "outer")),
		},
	}
	m := Map(f)
	assert.Equal(t, "co", m.Get(SlotCompany).Ref)
	assert.Equal(t, "dept", m.Get(SlotDepartment).Ref)
}

func TestMapConsentAndType(t *testing.T) {
	f := form(
		ctl("news", "input", "checkbox", "newsletter"),
		ctl("ok", "input", "checkbox", "privacy_agree"),
		ctl("kind", "select", "", "inquiry_type"),
		ctl("btn", "button", "", "", withText("確認画面へ")),
	)
	m := Map(f)
	assert.Equal(t, "ok", m.Get(SlotConsent).Ref)
	assert.Equal(t, "kind", m.Get(SlotType).Ref)
	assert.Equal(t, "btn", m.Get(SlotSubmit).Ref)
}

func TestMapAddressOrdering(t *testing.T) {
	f := form(
		ctl("a1", "input", "text", "address1", withPlaceholder("住所")),
		ctl("a2", "input", "text", "address2", withPlaceholder("建物名")),
		ctl("z", "input", "text", "zip", withID("zip")),
	)
	m := Map(f)
	assert.Equal(t, "a1", m.Get(SlotAddress1).Ref)
	assert.Equal(t, "a2", m.Get(SlotAddress2).Ref)
	assert.Equal(t, "z", m.Get(SlotZip).Ref)
}

func FuzzMapNeverAliases(f *testing.F) {
	f.Add([]byte("seed"))
	f.Fuzz(func(t *testing.T, data []byte) {
		fz := fuzz.NewConsumer(data)
		var controls []dom.Control
		if err := fz.CreateSlice(&controls); err != nil {
			return
		}
		for i := range controls {
			controls[i].Ref = fmt.Sprintf("c%d", i)
		}
		form := &dom.Form{Controls: controls}
		m := Map(form)
		seen := map[string]bool{}
		for _, ref := range m.Refs() {
			if seen[ref] {
				t.Fatalf("ref %q bound twice", ref)
			}
			seen[ref] = true
		}
		for _, c := range m {
			if !IsFillable(c) {
				t.Fatalf("unfillable control %q mapped", c.Ref)
			}
		}
	})
}
