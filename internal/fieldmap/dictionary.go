package fieldmap

import "regexp"

// Dictionary holds the label/hint vocabulary shared by the structural mapper
// and the hint-only filler. Patterns cover Japanese and English wording.
var (
	RxName       = regexp.MustCompile(`(?i)(お名前|氏名|ご担当者名|代表者名|name|full\s*name|contact\s*name)`)
	RxFamily     = regexp.MustCompile(`(?i)(姓|(^|[\s　*※])氏([\s　*※（(]|$)|last\s*name|surname|family\s*name)`)
	RxGiven      = regexp.MustCompile(`(?i)((^|[\s　*※])名([\s　*※（(]|$)|first\s*name|given\s*name)`)
	RxKana       = regexp.MustCompile(`(?i)(フリガナ|ふりがな|カナ|かな|kana|furigana)`)
	RxFamilyKana = regexp.MustCompile(`(セイ|せい|ｾｲ|フリガナ.*セイ|カナ.*セイ)`)
	RxGivenKana  = regexp.MustCompile(`(メイ|めい|ﾒｲ|フリガナ.*メイ|カナ.*メイ)`)

	RxCompany    = regexp.MustCompile(`(?i)(会社名|法人名|御社名|貴社名|団体名|company(\s*name)?|organi[sz]ation|(^|[^a-z])(corp|corporation|business|employer|firm)([^a-z]|$))`)
	RxDepartment = regexp.MustCompile(`(?i)(部署|所属|部門|department|division|team)`)
	RxTitle      = regexp.MustCompile(`(?i)(役職|肩書|職位|job\s*title|position)`)

	RxEmail        = regexp.MustCompile(`(?i)(メール(アドレス)?|e-?mail|email\s*address)`)
	RxEmailConfirm = regexp.MustCompile(`(?i)(確認.*メール|メール.*確認|retype|confirm(ation)?|verify|repeat|confirm\s*email)`)
	RxPhone        = regexp.MustCompile(`(?i)(電話(番号)?|TEL|携帯(番号)?|phone(\s*number)?|telephone|mobile|cell(ular)?)`)

	RxZip        = regexp.MustCompile(`(?i)(郵便番号|〒|ZIP|postal(\s*code)?|post\s*code|zip(\s*code)?)`)
	RxPrefecture = regexp.MustCompile(`(?i)(都道府県|prefecture|province|state|region)`)
	RxAddress1   = regexp.MustCompile(`(?i)(住所|市区町村|番地|address(\s*line)?\s*1?|street(\s*address)?)`)
	RxAddress2   = regexp.MustCompile(`(?i)(建物名|マンション名|建物|ﾏﾝｼｮﾝ|address(\s*line)?[\s_-]*2|addr2|line\s*2|building|(^|[^a-z])(apt|apartment|suite|unit|room)([^a-z]|$))`)

	RxSubject = regexp.MustCompile(`(?i)(件名|題名|タイトル|subject|title|topic)`)
	RxMessage = regexp.MustCompile(`(?i)(お問い合わせ(内容)?|内容|メッセージ|ご用件|ご質問|ご相談|詳細|message|inquiry|enquiry|description|details|comments?|body)`)
	RxType    = regexp.MustCompile(`(?i)(種別|種類|区分|目的|category|type|kind|purpose|reason|topic)`)
	RxConsent = regexp.MustCompile(`(?i)(同意|承諾|確認しました|プライバシ|個人情報|利用規約|privacy\s*policy|terms|I\s*agree|agree|accept|consent)`)

	// RxSubmitText matches submit button captions.
	RxSubmitText = regexp.MustCompile(`(?i)(送信|確認|submit|send|next|proceed|continue)`)

	// RxHoneypot matches name/id values used by decoy fields.
	RxHoneypot = regexp.MustCompile(`(?i)(honeypot|hp_|_hp|_confirm|website_url|url)`)
)

// Ordinal hints for split telephone inputs. Japanese tokens carry no word
// boundary since RE2 boundaries are ASCII-only.
var (
	rxTel1 = regexp.MustCompile(`(?i)((\b|_|tel|phone|\[)(1|ichi|area|country|part\s*1|first)|市外)`)
	rxTel2 = regexp.MustCompile(`(?i)((\b|_|tel|phone|\[)(2|ni|exchange|middle|part\s*2|second)|市内)`)
	rxTel3 = regexp.MustCompile(`(?i)((\b|_|tel|phone|\[)(3|san|subscriber|last|part\s*3|third)|加入者)`)

	rxZeroIndexed = regexp.MustCompile(`(\[0\]|_0\b|tel0|phone0)`)
)

// Kana first/last hints.
var (
	rxGivenHint  = regexp.MustCompile(`(?i)(first|given|mei|メイ|めい)`)
	rxFamilyHint = regexp.MustCompile(`(?i)(last|family|sei|セイ|せい)`)
)
