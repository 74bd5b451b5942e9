package fill

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/dom"
	"github.com/xkilldash9x/formpilot/internal/fieldmap"
	"github.com/xkilldash9x/formpilot/internal/htmldom"
)

func TestSplitPhoneJP(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"09012345678", []string{"090", "1234", "5678"}},
		{"090-1234-5678", []string{"090", "1234", "5678"}},
		{"0312345678", []string{"03", "1234", "5678"}},
		{"06-1234-5678", []string{"06", "1234", "5678"}},
		{"0451234567", []string{"045", "1234", "567"}},
		{"090-1234-56789", []string{"090", "1234", "56789"}},
		{"03-1234-567890", []string{"03", "1234", "567890"}},
		{"12345", []string{"12345"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			parts := SplitPhoneJP(tt.in)
			assert.Equal(t, tt.want, parts)
			assert.Equal(t, strings.ReplaceAll(tt.in, "-", ""), strings.Join(parts, ""))
		})
	}
}

func TestIsPlaceholderOption(t *testing.T) {
	assert.True(t, IsPlaceholderOption(dom.Option{Label: "選択してください", Value: "x"}))
	assert.True(t, IsPlaceholderOption(dom.Option{Label: "-- choose --", Value: "x"}))
	assert.True(t, IsPlaceholderOption(dom.Option{Label: "Sales", Value: ""}))
	assert.True(t, IsPlaceholderOption(dom.Option{Label: "Sales", Value: "-1"}))
	assert.False(t, IsPlaceholderOption(dom.Option{Label: "Sales", Value: "sales"}))
}

func TestPreferOtherOrFirst(t *testing.T) {
	opts := []dom.Option{
		{Label: "選択してください", Value: ""},
		{Label: "製品について", Value: "product"},
		{Label: "その他", Value: "other"},
	}
	o, ok := preferOtherOrFirst(opts)
	require.True(t, ok)
	assert.Equal(t, "other", o.Value)

	o, ok = preferOtherOrFirst(opts[:2])
	require.True(t, ok)
	assert.Equal(t, "product", o.Value)

	_, ok = preferOtherOrFirst(opts[:1])
	assert.False(t, ok)
}

const contactForm = `<html><body><form id="f">
<label for="sei">姓</label><input id="sei" name="sei">
<label for="mei">名</label><input id="mei" name="mei">
<input type="email" name="email">
<input type="email" name="confirm_email" placeholder="確認">
<input name="tel1" type="tel"><input name="tel2" type="tel"><input name="tel3" type="tel">
<select name="pref"><option value="">選択してください</option><option>東京都</option><option>大阪府</option></select>
<select name="inquiry_type"><option value="">選択してください</option><option value="p">製品</option><option value="o">その他</option></select>
<input name="company" value="既存の会社">
<textarea name="message"></textarea>
<input type="checkbox" name="agree">
<button type="submit">送信</button>
</form></body></html>`

func mapped(t *testing.T, markup string) (*htmldom.Document, fieldmap.FieldMap, *dom.Form) {
	t.Helper()
	page, err := htmldom.Parse(markup)
	require.NoError(t, err)
	ref, ok := page.Find("form").Attr(htmldom.RefAttr)
	require.True(t, ok)
	f, err := page.Form(context.Background(), ref)
	require.NoError(t, err)
	return page, fieldmap.Map(f), f
}

func TestFillWritesPayload(t *testing.T) {
	page, m, _ := mapped(t, contactForm)
	payload := schemas.Payload{
		Name:       "山田 太郎",
		Email:      "taro@example.com",
		Phone:      "090-1234-5678",
		Prefecture: "東京",
		Type:       "採用",
		Company:    "Acme",
		Message:    "こんにちは",
	}

	var events []string
	rep := New(zap.NewNop()).Fill(context.Background(), page, m, payload, func(s string) { events = append(events, s) })

	assert.Equal(t, "山田", page.Value(m.Get(fieldmap.SlotFamilyName).Ref))
	assert.Equal(t, "太郎", page.Value(m.Get(fieldmap.SlotGivenName).Ref))
	assert.Equal(t, "taro@example.com", page.Value(m.Get(fieldmap.SlotEmail).Ref))
	assert.Equal(t, "taro@example.com", page.Value(m.Get(fieldmap.SlotEmailConfirm).Ref))
	assert.Equal(t, "090", page.Value(m.Get(fieldmap.SlotTel1).Ref))
	assert.Equal(t, "1234", page.Value(m.Get(fieldmap.SlotTel2).Ref))
	assert.Equal(t, "5678", page.Value(m.Get(fieldmap.SlotTel3).Ref))
	assert.Equal(t, "東京都", page.Value(m.Get(fieldmap.SlotPrefecture).Ref))
	assert.Equal(t, "o", page.Value(m.Get(fieldmap.SlotType).Ref), "unknown type falls back to the other option")
	assert.Equal(t, "既存の会社", page.Value(m.Get(fieldmap.SlotCompany).Ref), "pre-filled controls are left alone")
	assert.Equal(t, "こんにちは", page.Value(m.Get(fieldmap.SlotMessage).Ref))
	assert.True(t, page.Checked(m.Get(fieldmap.SlotConsent).Ref))

	assert.Contains(t, rep.Prefilled, string(fieldmap.SlotCompany))
	assert.Equal(t, rep.Filled, events)
	assert.Empty(t, rep.Failed)
}

func TestFillNeverWritesEmptyValues(t *testing.T) {
	page, m, _ := mapped(t, contactForm)
	before := page.HTML()
	rep := New(zap.NewNop()).Fill(context.Background(), page, m, schemas.Payload{Agree: schemas.BoolPtr(false)}, nil)

	assert.Zero(t, rep.Count())
	assert.Equal(t, before, page.HTML())
}

func TestFillFusedNameFallback(t *testing.T) {
	page, m, _ := mapped(t, `<form><label for="s">姓</label><input id="s" name="last_name"><textarea name="message"></textarea></form>`)
	require.True(t, m.Has(fieldmap.SlotFamilyName))
	require.False(t, m.Has(fieldmap.SlotGivenName))

	New(zap.NewNop()).Fill(context.Background(), page, m, schemas.Payload{Sei: "山田", Mei: "太郎"}, nil)
	assert.Equal(t, "山田 太郎", page.Value(m.Get(fieldmap.SlotFamilyName).Ref))
}

func TestFillTwoPartPhone(t *testing.T) {
	page, m, _ := mapped(t, `<form><input name="tel1"><input name="tel2"></form>`)
	require.True(t, m.Has(fieldmap.SlotTel1))
	require.True(t, m.Has(fieldmap.SlotTel2))

	New(zap.NewNop()).Fill(context.Background(), page, m, schemas.Payload{PhoneParts: []string{"03", "1234", "5678"}}, nil)
	assert.Equal(t, "03", page.Value(m.Get(fieldmap.SlotTel1).Ref))
	assert.Equal(t, "12345678", page.Value(m.Get(fieldmap.SlotTel2).Ref))
}

type brokenPage struct{ *htmldom.Document }

func (brokenPage) Fill(context.Context, string, string) error { return assert.AnError }

func TestFillToleratesWriteFailures(t *testing.T) {
	page, m, _ := mapped(t, contactForm)
	rep := New(zap.NewNop()).Fill(context.Background(), brokenPage{page}, m,
		schemas.Payload{Email: "a@b.c", Message: "hi"}, nil)

	assert.Contains(t, rep.Failed, string(fieldmap.SlotEmail))
	assert.Contains(t, rep.Failed, string(fieldmap.SlotMessage))
	assert.Contains(t, rep.Filled, string(fieldmap.SlotConsent), "other writes still proceed")
}

func TestFillAnything(t *testing.T) {
	markup := `<form>
<input name="your-company" placeholder="会社名">
<input name="sei_kana"><input name="last_name"><input name="first_name">
<input name="your-email"><input name="zip">
<input name="hp_email">
<select name="q1"><option value="">--</option><option value="a">A</option></select>
<input name="source" list="srcs"><datalist id="srcs"><option value="web"></datalist>
<textarea name="inquiry"></textarea>
<input type="checkbox" name="opt">
</form>`
	page, _, form := mapped(t, markup)
	payload := schemas.Payload{Company: "Acme", Name: "Yamada Taro", SeiKana: "ヤマダ", Email: "t@example.com", Message: "Hello"}

	rep := New(zap.NewNop()).FillAnything(context.Background(), page, form, payload, nil)

	val := func(name string) string {
		ref, _ := page.Find(`[name="` + name + `"]`).Attr(htmldom.RefAttr)
		return page.Value(ref)
	}
	assert.Equal(t, "Acme", val("your-company"))
	assert.Equal(t, "ヤマダ", val("sei_kana"))
	assert.Equal(t, "Yamada", val("last_name"))
	assert.Equal(t, "Taro", val("first_name"))
	assert.Equal(t, "t@example.com", val("your-email"))
	assert.Equal(t, "", val("zip"), "empty payload values are never written")
	assert.Equal(t, "", val("hp_email"))
	assert.Equal(t, "a", val("q1"))
	assert.Equal(t, "web", val("source"))
	assert.Equal(t, "Hello", val("inquiry"))
	ref, _ := page.Find(`[name="opt"]`).Attr(htmldom.RefAttr)
	assert.True(t, page.Checked(ref))
	assert.NotEmpty(t, rep.Filled)
}
