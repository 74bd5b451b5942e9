package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHint(t *testing.T) {
	tests := []struct {
		hint string
		want Slot
	}{
		{"company_name", SlotCompany},
		{"email_confirm", SlotEmail},
		{"your-email", SlotEmail},
		{"sei_kana", SlotFamilyKana},
		{"mei_kana", SlotGivenKana},
		{"last_name", SlotFamilyName},
		{"first_name", SlotGivenName},
		{"address2", SlotAddress2},
		{"add", SlotAddress1},
		{"zip", SlotZip},
		{"tel", SlotPhone},
		{"furigana", SlotKana},
		{"your-name", SlotName},
		{"privacy agree", SlotConsent},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			got, ok := ClassifyHint(tt.hint)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ClassifyHint("xyz")
	assert.False(t, ok)
}

func TestIsMessageHint(t *testing.T) {
	assert.True(t, IsMessageHint("inquiry content"))
	assert.True(t, IsMessageHint("お問い合わせ内容"))
	assert.False(t, IsMessageHint("zip"))
}
