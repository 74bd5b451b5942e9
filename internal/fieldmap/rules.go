package fieldmap

import "github.com/xkilldash9x/formpilot/internal/dom"

// rule is the ordered strategy chain for one slot. skip, when set, disables
// the rule given what has been mapped so far.
type rule struct {
	slot  Slot
	chain []strategy
	skip  func(m FieldMap) bool
}

func splitNameMapped(m FieldMap) bool { return m.Has(SlotFamilyName) && m.Has(SlotGivenName) }

// Rules run in this order. Earlier slots claim their control first, so
// specific slots precede the broad ones they would otherwise shadow.
var nameRules = []rule{
	{slot: SlotEmail, chain: []strategy{
		bySelectors(
			in(typeIs("email")), in(has("name", "mail")), in(has("id", "mail")),
			in(has("placeholder", "メール")), in(has("placeholder", "email")), in(has("aria-label", "email")),
			in(is("name", "your-email")), in(is("name", "Email")), in(is("name", "email")),
			in(is("name", "fields[email]")), in(is("name", "contact[email]")),
		),
		byLabel(RxEmail, textInput),
		byNearby(RxEmail, textInput),
	}},
	{slot: SlotEmailConfirm, chain: []strategy{
		bySelectors(
			in(has("name", "confirm")), in(has("id", "confirm")),
			in(has("placeholder", "確認")), in(has("placeholder", "confirm")), in(has("aria-label", "confirm")),
			in(is("name", "your-email-confirm")), in(is("name", "email_confirm")), in(is("name", "emailConfirmation")),
		),
		byLabel(RxEmailConfirm, textInput),
	}},
	{slot: SlotFamilyKana, chain: []strategy{
		bySelectors(
			in(has("name", "sei_kana")), in(has("id", "sei_kana")),
			in(has("name", "last"), has("name", "kana")), in(has("name", "family"), has("name", "kana")),
			in(has("placeholder", "セイ")),
		),
		byLabel(RxFamilyKana, textInput),
	}},
	{slot: SlotGivenKana, chain: []strategy{
		bySelectors(
			in(has("name", "mei_kana")), in(has("id", "mei_kana")),
			in(has("name", "first"), has("name", "kana")), in(has("name", "given"), has("name", "kana")),
			in(has("placeholder", "メイ")),
		),
		byLabel(RxGivenKana, textInput),
	}},
}

var bodyRules = []rule{
	{slot: SlotFamilyName, chain: []strategy{
		bySelectors(
			in(has("name", "sei")), in(has("id", "sei")), in(has("name", "last")), in(has("id", "last")),
			in(has("name", "surname")), in(has("name", "family")), in(has("id", "family")),
			in(has("placeholder", "姓")), in(has("placeholder", "last")), in(has("aria-label", "last")),
			in(is("name", "your-lastname")), in(is("name", "last_name")), in(is("name", "lastname")),
		),
		byLabel(RxFamily, textInput),
		byNearby(RxFamily, textInput),
	}},
	{slot: SlotGivenName, chain: []strategy{
		bySelectors(
			in(has("name", "mei")), in(has("id", "mei")), in(has("name", "first")), in(has("id", "first")),
			in(has("name", "given")), in(has("id", "given")),
			in(is("placeholder", "名")), in(has("placeholder", "first")), in(has("aria-label", "first")),
			in(is("name", "your-firstname")), in(is("name", "first_name")), in(is("name", "firstname")),
		),
		byLabel(RxGiven, textInput),
		byNearby(RxGiven, textInput),
	}},
	{slot: SlotCompany, chain: []strategy{
		bySelectors(
			in(has("name", "company")), in(has("id", "company")),
			in(has("placeholder", "会社名")), in(has("placeholder", "法人名")), in(has("placeholder", "company")),
			in(has("aria-label", "company")),
			in(is("name", "your-company")), in(is("name", "company_name")), in(has("name", "organization")),
			in(has("name", "kaisya")), in(has("name", "kaisha")),
		),
		byLabel(RxCompany, textInput),
		byNearby(RxCompany, textInput),
	}},
	{slot: SlotDepartment, chain: []strategy{
		bySelectors(
			in(has("name", "department")), in(has("id", "department")), in(has("name", "busho")),
			in(has("name", "division")), in(has("placeholder", "部署")),
		),
		byLabel(RxDepartment, textInput),
		byNearby(RxDepartment, textInput),
	}},
	{slot: SlotTitle, chain: []strategy{
		bySelectors(
			in(has("name", "position")), in(has("name", "yakushoku")), in(has("name", "job_title")),
			in(has("name", "jobtitle")), in(has("placeholder", "役職")),
		),
		byLabel(RxTitle, textInput),
	}},
	{slot: SlotName, skip: splitNameMapped, chain: []strategy{
		bySelectors(
			in(has("name", "fullname")), in(has("id", "fullname")),
			in(has("placeholder", "名前")), in(has("placeholder", "氏名")), in(has("placeholder", "full name")),
			in(has("aria-label", "full name")),
			in(is("name", "your-name")), in(is("name", "name")), in(is("name", "wpforms[fields][name]")),
			in(has("name", "onamae")), in(has("name", "shimei")),
		),
		byLabel(RxName, textInput),
		byNearby(RxName, textInput),
	}},
	{slot: SlotPhone, chain: []strategy{
		bySelectors(
			in(typeIs("tel")), in(has("name", "tel")), in(has("id", "tel")),
			in(has("placeholder", "電話")), in(has("placeholder", "phone")), in(has("aria-label", "phone")),
			in(is("name", "your-tel")), in(has("name", "phone")), in(has("name", "mobile")),
		),
		byLabel(RxPhone, textInput),
		byNearby(RxPhone, textInput),
	}},
	{slot: SlotZip, chain: []strategy{
		bySelectors(
			in(has("name", "zip")), in(has("id", "zip")), in(has("name", "postcode")), in(has("name", "postal")),
			in(has("name", "yubin")), in(has("placeholder", "郵便")), in(has("placeholder", "zip")),
			in(has("aria-label", "zip")),
		),
		byLabel(RxZip, textInput),
		byNearby(RxZip, textInput),
	}},
	{slot: SlotPrefecture, chain: []strategy{
		bySelectors(
			sel(has("name", "pref")), sel(has("id", "pref")), sel(has("name", "state")),
			sel(has("name", "province")), sel(has("name", "region")),
			in(has("name", "pref")), in(has("id", "pref")),
		),
		byLabel(RxPrefecture, either(selectEl, textInput)),
		byNearby(RxPrefecture, selectEl),
	}},
	{slot: SlotAddress2, chain: []strategy{
		bySelectors(
			in(has("name", "building")), in(has("name", "addr2")), in(has("name", "address2")),
			in(has("name", "line2")), in(has("name", "apt")), in(has("name", "suite")),
			in(has("placeholder", "建物")), in(has("placeholder", "apartment")),
		),
		byLabel(RxAddress2, textInput),
	}},
	{slot: SlotAddress1, chain: []strategy{
		bySelectors(
			in(has("name", "address")), ta(has("name", "address")), in(has("id", "address")),
			in(has("name", "street")), in(has("name", "line1")), in(has("name", "jusho")),
			in(has("placeholder", "住所")), in(has("placeholder", "street")),
		),
		byLabel(RxAddress1, textField),
		byNearby(RxAddress1, textField),
	}},
	{slot: SlotSubject, chain: []strategy{
		bySelectors(
			in(has("name", "subject")), in(has("id", "subject")), in(has("name", "kenmei")),
			in(has("placeholder", "件名")), in(has("placeholder", "subject")), in(has("aria-label", "subject")),
			in(is("name", "your-subject")),
		),
		byLabel(RxSubject, textInput),
	}},
	{slot: SlotMessage, chain: []strategy{
		bySelectors(
			ta(has("name", "message")), ta(has("name", "comment")), ta(has("name", "inquiry")),
			ta(has("name", "description")), ta(has("name", "details")), ta(has("name", "body")),
			ta(has("name", "content")), ta(has("id", "message")),
			ta(has("placeholder", "お問い合わせ内容")), ta(has("placeholder", "message")),
			ta(has("aria-label", "message")), ta(is("name", "your-message")),
		),
		byLabel(RxMessage, textarea),
		bySelectors(textarea),
		bySelectors(in(has("name", "message")), in(has("name", "comment"))),
		byNearby(RxMessage, textField),
	}},
	{slot: SlotType, chain: []strategy{
		bySelectors(
			sel(has("name", "type")), sel(has("name", "kind")), sel(has("name", "category")),
			sel(has("name", "purpose")), sel(has("name", "reason")), sel(has("name", "topic")),
			sel(has("name", "shubetsu")),
		),
		byLabel(RxType, selectEl),
		byNearby(RxType, selectEl),
		bySelectors(selectEl),
	}},
	{slot: SlotConsent, chain: []strategy{
		bySelectors(
			all(checkbox, has("name", "consent")), all(checkbox, has("name", "agree")),
			all(checkbox, has("id", "consent")), all(checkbox, has("id", "agree")),
			all(checkbox, has("name", "privacy")), all(checkbox, has("name", "acceptance")),
		),
		byLabel(RxConsent, checkbox),
		byNearby(RxConsent, checkbox),
		bySelectors(checkbox),
	}},
	{slot: SlotSubmit, chain: []strategy{
		bySelectors(all(button, typeIs("submit")), all(tag("input"), typeIs("submit"))),
		byText(RxSubmitText, submitEl),
		byNearby(RxSubmitText, submitEl),
	}},
}

func (r rule) run(f *dom.Form, m FieldMap, cl claims) {
	if r.skip != nil && r.skip(m) {
		return
	}
	for _, s := range r.chain {
		if c := s(f, cl); c != nil {
			m.set(r.slot, c)
			cl[c.Ref] = true
			return
		}
	}
}
