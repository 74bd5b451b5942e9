// Package verdict classifies the page state after a form submit as
// success, maybe or fail.
package verdict

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/dom"
)

// Defaults for WaitForSuccess.
const (
	DefaultTimeout = 12 * time.Second
	DefaultSettle  = 600 * time.Millisecond
)

var thanksText = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`(お問い合わせ|お問合せ|ご連絡|お申し込み|申込|応募|資料請求|見積|予約|ご注文|購入).*(完了|受け付け|受理|送信|ありがとうございました|ありがとうございます)`,
	`(送信|応募|申込|登録|完了|受付)(が|を)?(完了|成功|しました|されました)`,
	`(受付|受け付け)(完了|しました|いたしました)`,
	`(ありがとうございました|ありがとうございます)`,
	`(送信完了|受付完了|登録完了|送信成功|受付済み|送信が完了しました)`,
	`(フォームの送信|エントリー).*(完了|成功)`,
	`ご(依頼|連絡|質問)ありがとうございます`,
	`(thank\s*you|thanks)`,
	`(we('|’)?ll\s*be\s*in\s*touch|we\s*will\s*contact\s*you)`,
	`(your\s*(message|request|inquiry|enquiry|submission|form)\s*(has\s*been)?\s*(sent|received|submitted|success))`,
	`\b(submission\s*complete|success(ful(ly)?)?|completed)\b`,
	`(request\s*received)`,
}, "|"))

var (
	successPath  = regexp.MustCompile(`(?i)(^|[^a-z])(thank(s|-?you)?|complete(d)?|done|success|sent|submitted|contact(-|_)?(thanks|complete|done)|finish(ed)?)`)
	successQuery = regexp.MustCompile(`(?i)(\bstatus=(success|ok|done|sent)\b|\bsent=1\b|\bsuccess=1\b|\bsubmitted=1\b)`)
	successHash  = regexp.MustCompile(`(?i)(thank|thanks|complete|done|success|sent|submitted)`)
)

// SuccessSelectors are vendor and ARIA markers of an accepted submission.
var SuccessSelectors = []string{
	`.wpcf7 form[data-status="sent"]`,
	`.wpcf7 .wpcf7-mail-sent-ok`,
	`.submitted-message`,
	`.hs-form__thank-you`,
	`.mktoForm .mktoThankYou`,
	`.alert.alert-success, .alert-success, [role="alert"].is-success`,
	`[data-formrun-success], .formrun-success, .formrun-message--success`,
	`[role="status"], [role="alert"], .message, .notice, .result, .status, .thank, .complete, .success`,
}

// ErrorSelectors mark a rejected submission.
var ErrorSelectors = []string{
	`.wpcf7 form[data-status="invalid"]`,
	`.wpcf7-not-valid-tip`,
	`[aria-invalid="true"]`,
	`.error, .errors, .is-error, .has-error, .validation-error`,
	`.alert-danger, .alert-error, .text-danger`,
}

// CaptchaSelectors detect challenge widgets.
var CaptchaSelectors = []string{
	`.g-recaptcha`,
	`[data-sitekey]`,
	`iframe[src*="recaptcha"]`,
	`[data-hcaptcha-response]`,
	`iframe[src*="hcaptcha"]`,
}

// SubmitSelector locates submit buttons for the disabled check.
const SubmitSelector = `button[type="submit"], input[type="submit"]`

// Query is the signal query sent to pages.
var Query = dom.SignalQuery{
	SuccessSelectors: SuccessSelectors,
	ErrorSelectors:   ErrorSelectors,
	CaptchaSelectors: CaptchaSelectors,
	SubmitSelector:   SubmitSelector,
}

// URLIndicatesSuccess checks the path, query and fragment of raw.
func URLIndicatesSuccess(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return successPath.MatchString(u.Path) ||
		successQuery.MatchString(u.RawQuery) ||
		successHash.MatchString(u.Fragment)
}

// TextIndicatesSuccess matches the thank-you dictionary.
func TextIndicatesSuccess(text string) bool { return thanksText.MatchString(text) }

// Classify applies the tiers in order; the first decisive one wins.
func Classify(s dom.Signals) schemas.Verdict {
	if URLIndicatesSuccess(s.URL) {
		return schemas.VerdictSuccess
	}
	thanks := TextIndicatesSuccess(s.VisibleText)
	if s.SuccessSelector {
		if thanks {
			return schemas.VerdictSuccess
		}
		return schemas.VerdictMaybe
	}
	if thanks {
		return schemas.VerdictSuccess
	}
	if s.ErrorSelector || s.Captcha {
		return schemas.VerdictFail
	}
	if s.SubmitDisabled {
		return schemas.VerdictMaybe
	}
	return schemas.VerdictFail
}

// Options tunes WaitForSuccess. Zero values take the defaults.
type Options struct {
	Timeout time.Duration
	Settle  time.Duration
}

// Classifier waits for post-submit state and classifies it.
type Classifier struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Classifier {
	return &Classifier{logger: logger.Named("verdict")}
}

// WaitForSuccess waits for navigation or network idle, lets the page
// settle, then reads and classifies its signals. An error is returned only
// when the signals cannot be read at all.
func (c *Classifier) WaitForSuccess(ctx context.Context, page dom.Page, opts Options) (schemas.Verdict, *dom.Signals, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	if err := page.WaitSettled(waitCtx, opts.Settle); err != nil && ctx.Err() == nil {
		c.logger.Debug("Page did not settle before timeout.", zap.Error(err))
	}
	cancel()

	t := time.NewTimer(opts.Settle)
	select {
	case <-ctx.Done():
		t.Stop()
		return schemas.VerdictFail, nil, ctx.Err()
	case <-t.C:
	}

	sig, err := page.Signals(ctx, Query)
	if err != nil {
		return schemas.VerdictFail, nil, err
	}
	v := Classify(*sig)
	c.logger.Info("Verdict reached.", zap.String("verdict", string(v)), zap.String("url", sig.URL))
	return v, sig, nil
}
