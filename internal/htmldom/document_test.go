package htmldom

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

const page = `<html><head><title>t</title></head><body>
<form id="f" class="wpcf7-form">
  <div class="form-group"><label for="em">メールアドレス</label><input id="em" type="email" name="email"></div>
  <div class="form-group" style="display: none"><input name="trap"></div>
  <label>お名前 <input name="your-name"></label>
  <select name="pref"><option value="">選択</option><option value="13" disabled>東京都</option><option>大阪府</option></select>
  <input name="src" list="l"><datalist id="l"><option value="web" label="Web"></datalist>
  <input type="submit" value="送信">
</form>
<div role="alert"></div>
<script>var x = "ありがとうございました";</script>
</body></html>`

func parse(t *testing.T) *Document {
	t.Helper()
	d, err := Parse(page, WithURL("https://example.com/contact"))
	require.NoError(t, err)
	return d
}

func formOf(t *testing.T, d *Document) *dom.Form {
	t.Helper()
	ref, ok := d.Find("#f").Attr(RefAttr)
	require.True(t, ok)
	f, err := d.Form(context.Background(), ref)
	require.NoError(t, err)
	return f
}

func byName(f *dom.Form, name string) *dom.Control {
	for i := range f.Controls {
		if f.Controls[i].Name == name {
			return &f.Controls[i]
		}
	}
	return nil
}

func TestFormSnapshot(t *testing.T) {
	d := parse(t)
	f := formOf(t, d)

	em := byName(f, "email")
	require.NotNil(t, em)
	assert.Equal(t, "メールアドレス", em.LabelText)
	assert.True(t, em.Visible)
	require.NotEmpty(t, em.Containers)

	trap := byName(f, "trap")
	require.NotNil(t, trap)
	assert.False(t, trap.Visible)
	assert.True(t, trap.DisplayNone)

	name := byName(f, "your-name")
	require.NotNil(t, name)
	assert.Equal(t, "お名前", name.LabelText)
	assert.Equal(t, "text", name.Type)

	pref := byName(f, "pref")
	require.Len(t, pref.Options, 3)
	assert.True(t, pref.Options[1].Disabled)
	assert.False(t, pref.Options[2].HasValue)
	assert.Equal(t, "大阪府", pref.Options[2].Value)

	src := byName(f, "src")
	require.Len(t, src.Options, 1)
	assert.Equal(t, "Web", src.Options[0].Label)

	var submit *dom.Control
	for i := range f.Controls {
		if f.Controls[i].Type == "submit" {
			submit = &f.Controls[i]
		}
	}
	require.NotNil(t, submit)
	assert.Equal(t, "送信", submit.Text)

	var group dom.Container
	for _, c := range f.Containers {
		if c.Ref == em.Containers[0] {
			group = c
		}
	}
	assert.True(t, group.HasClass("form-group"))
	assert.Equal(t, "メールアドレス", group.Text)
}

func TestMutations(t *testing.T) {
	d := parse(t)
	f := formOf(t, d)
	ctx := context.Background()

	em := byName(f, "email")
	require.NoError(t, d.Fill(ctx, em.Ref, "a@b.c"))
	assert.Equal(t, "a@b.c", d.Value(em.Ref))

	pref := byName(f, "pref")
	require.NoError(t, d.Select(ctx, pref.Ref, dom.SelectBy{Label: "大阪府"}))
	assert.Equal(t, "大阪府", d.Value(pref.Ref))
	assert.Error(t, d.Select(ctx, pref.Ref, dom.SelectBy{Label: "北海道"}))

	assert.Error(t, d.Fill(ctx, "nope", "x"))
}

func TestInjectStyleIsIdempotent(t *testing.T) {
	d := parse(t)
	ctx := context.Background()
	require.NoError(t, d.InjectStyle(ctx, "kill", "a{}"))
	require.NoError(t, d.InjectStyle(ctx, "kill", "b{}"))
	assert.Equal(t, 1, d.Find("style#kill").Length())
	assert.Equal(t, "b{}", d.Find("style#kill").Text())
}

func TestSignals(t *testing.T) {
	d := parse(t)
	sig, err := d.Signals(context.Background(), dom.SignalQuery{
		SuccessSelectors: []string{`[role="alert"]`},
		CaptchaSelectors: []string{".g-recaptcha"},
		SubmitSelector:   `input[type="submit"]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/contact", sig.URL)
	assert.NotContains(t, sig.VisibleText, "ありがとうございました", "script text is not visible")
	assert.False(t, sig.SuccessSelector, "empty alert box is not a signal")
	assert.False(t, sig.Captcha)
	assert.False(t, sig.SubmitDisabled)
}

func TestSignalsKeepsNodesOnSeparateLines(t *testing.T) {
	d, err := Parse(`<html><body>
<h1>お問い合わせ</h1>
<p>以下の   フォームに入力してください。</p>
<form>
  <textarea name="m">ありがとうございます</textarea>
  <select name="t"><option>資料請求</option></select>
  <button type="submit">送信</button>
</form></body></html>`)
	require.NoError(t, err)

	sig, err := d.Signals(context.Background(), dom.SignalQuery{})
	require.NoError(t, err)
	assert.Equal(t, "お問い合わせ\n以下の フォームに入力してください。\n送信", sig.VisibleText)
}

func TestClickHookAndSelectorActions(t *testing.T) {
	d, err := Parse(page, WithClickHook(func(d *Document, ref string) {
		_ = d.SetHTML(`<html><body><p>送信完了</p></body></html>`)
		d.SetURL("https://example.com/thanks")
	}))
	require.NoError(t, err)
	ctx := context.Background()

	clicked, err := d.ClickSelector(ctx, `input[type="submit"]`)
	require.NoError(t, err)
	assert.True(t, clicked)
	assert.Len(t, d.Clicks(), 1)

	u, _ := d.URL(ctx)
	assert.Equal(t, "https://example.com/thanks", u)

	n, err := d.RemoveSelector(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clicked, err = d.ClickSelector(ctx, ".missing")
	require.NoError(t, err)
	assert.False(t, clicked)
}

func TestFetchDecodesBrotliAndGzip(t *testing.T) {
	body := "<html><body>hello</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/br":
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write([]byte(body))
			_ = bw.Close()
			w.Header().Set("Content-Encoding", "br")
		case "/gz":
			gw := gzip.NewWriter(&buf)
			_, _ = gw.Write([]byte(body))
			_ = gw.Close()
			w.Header().Set("Content-Encoding", "gzip")
		default:
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := NewFetcher(zap.NewNop(), "test", 5*time.Second, 0)
	for _, p := range []string{"/br", "/gz"} {
		got, final, err := f.Fetch(context.Background(), srv.URL+p)
		require.NoError(t, err, p)
		assert.Equal(t, body, got)
		assert.Equal(t, srv.URL+p, final)
	}

	_, _, err := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestNavigateWithLoader(t *testing.T) {
	d, err := Parse("<html></html>", WithLoader(func(ctx context.Context, url string) (string, string, error) {
		return `<html><body><form><input type="email"></form></body></html>`, url + "#final", nil
	}))
	require.NoError(t, err)
	require.NoError(t, d.Navigate(context.Background(), "https://example.com"))
	u, _ := d.URL(context.Background())
	assert.Equal(t, "https://example.com#final", u)
	assert.Equal(t, 1, d.Find("form").Length())
}

func TestContextFactoryLoadsPages(t *testing.T) {
	loader := func(_ context.Context, url string) (string, string, error) {
		return `<form><input name="email"></form>`, url + "#loaded", nil
	}
	f := NewContextFactory(loader)

	c1, err := f.Create(context.Background())
	require.NoError(t, err)
	c2, err := f.Create(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID(), c2.ID())

	page, err := c1.NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, page.Navigate(context.Background(), "https://example.com/contact"))
	u, err := page.URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/contact#loaded", u)
	assert.Equal(t, 1, page.(*Document).Find(`input[name="email"]`).Length())

	assert.NoError(t, c1.Reset(context.Background()))
	assert.NoError(t, c1.Close(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Create(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
