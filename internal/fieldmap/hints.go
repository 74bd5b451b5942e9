package fieldmap

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

var (
	rxHintAddress1 = regexp.MustCompile(`(?i)(住所|市区町村|番地|address(\s*line)?\s*1?|street(\s*address)?|(^|[^a-z])add([^a-z]|$))`)
	rxHintMessage  = regexp.MustCompile(`(?i)(お問い合わせ(内容)?|内容|メッセージ|ご用件|ご質問|ご相談|詳細|message|inquiry|enquiry|description|details|comments?|body|content)`)
	rxHintGiven    = regexp.MustCompile(`(?i)((^|[\s　])名([\s　]|$)|first[\s_-]*name|given[\s_-]*name|firstname|(^|[^a-z])mei([^a-z]|$))`)
	rxHintFamily   = regexp.MustCompile(`(?i)(姓|last[\s_-]*name|surname|family[\s_-]*name|lastname|(^|[^a-z])sei([^a-z]|$))`)
	rxSeiToken     = regexp.MustCompile(`(?i)(^|[^a-z])sei([^a-z]|$)|セイ`)
	rxMeiToken     = regexp.MustCompile(`(?i)(^|[^a-z])mei([^a-z]|$)|メイ`)
)

type hintRule struct {
	slot Slot
	test func(h string) bool
}

func rx(r *regexp.Regexp) func(string) bool { return r.MatchString }

func kanaOf(half *regexp.Regexp) func(string) bool {
	return func(h string) bool { return RxKana.MatchString(h) && half.MatchString(h) }
}

// hintRules is the first-match order for hint-only classification. Kana
// halves precede plain names so "sei_kana" is not read as a family name.
var hintRules = []hintRule{
	{SlotCompany, rx(RxCompany)},
	{SlotAddress2, rx(RxAddress2)},
	{SlotAddress1, rx(rxHintAddress1)},
	{SlotGivenKana, kanaOf(rxMeiToken)},
	{SlotGivenName, rx(rxHintGiven)},
	{SlotFamilyKana, kanaOf(rxSeiToken)},
	{SlotFamilyName, rx(rxHintFamily)},
	{SlotEmail, rx(RxEmail)},
	{SlotEmailConfirm, rx(RxEmailConfirm)},
	{SlotZip, rx(RxZip)},
	{SlotPhone, rx(RxPhone)},
	{SlotPrefecture, rx(RxPrefecture)},
	{SlotKana, rx(RxKana)},
	{SlotName, rx(RxName)},
	{SlotConsent, rx(RxConsent)},
}

// Hint is the lowercased attribute text a control is classified by.
func Hint(c *dom.Control) string {
	return strings.ToLower(strings.Join([]string{c.Name, c.ID, c.Placeholder, c.AriaLabel, c.Class, c.LabelText}, " "))
}

// ClassifyHint returns the first slot whose pattern matches h.
func ClassifyHint(h string) (Slot, bool) {
	for _, r := range hintRules {
		if r.test(h) {
			return r.slot, true
		}
	}
	return "", false
}

// IsMessageHint reports whether h looks like a free-text message field.
func IsMessageHint(h string) bool { return rxHintMessage.MatchString(h) }
