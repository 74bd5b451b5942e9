package fieldmap

import (
	"sort"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

// Slot is a semantic purpose for a form control.
type Slot string

const (
	SlotName         Slot = "name"
	SlotFamilyName   Slot = "familyName"
	SlotGivenName    Slot = "givenName"
	SlotKana         Slot = "kana"
	SlotFamilyKana   Slot = "familyKana"
	SlotGivenKana    Slot = "givenKana"
	SlotCompany      Slot = "company"
	SlotDepartment   Slot = "department"
	SlotTitle        Slot = "title"
	SlotEmail        Slot = "email"
	SlotEmailConfirm Slot = "emailConfirm"
	SlotPhone        Slot = "phone"
	SlotTel1         Slot = "tel1"
	SlotTel2         Slot = "tel2"
	SlotTel3         Slot = "tel3"
	SlotZip          Slot = "zip"
	SlotPrefecture   Slot = "prefecture"
	SlotAddress1     Slot = "address1"
	SlotAddress2     Slot = "address2"
	SlotSubject      Slot = "subject"
	SlotMessage      Slot = "message"
	SlotType         Slot = "type"
	SlotConsent      Slot = "consent"
	SlotSubmit       Slot = "submit"
)

// CoreSlots must all be present for a candidate to be worth submitting.
var CoreSlots = []Slot{SlotEmail, SlotMessage, SlotSubmit}

// FieldMap maps each located slot to exactly one control.
type FieldMap map[Slot]*dom.Control

// Get returns the control for slot, or nil.
func (m FieldMap) Get(s Slot) *dom.Control { return m[s] }

// Has reports whether slot was located.
func (m FieldMap) Has(s Slot) bool { return m[s] != nil }

// HasCore reports whether email, message and submit were all located.
func (m FieldMap) HasCore() bool {
	for _, s := range CoreSlots {
		if !m.Has(s) {
			return false
		}
	}
	return true
}

// Slots returns the located slots sorted by name.
func (m FieldMap) Slots() []Slot {
	out := make([]Slot, 0, len(m))
	for s, c := range m {
		if c != nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SlotNames is Slots as plain strings.
func (m FieldMap) SlotNames() []string {
	slots := m.Slots()
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	return out
}

// Refs returns slot → element ref, handy for logging and assertions.
func (m FieldMap) Refs() map[Slot]string {
	out := make(map[Slot]string, len(m))
	for s, c := range m {
		if c != nil {
			out[s] = c.Ref
		}
	}
	return out
}

func (m FieldMap) set(s Slot, c *dom.Control) {
	if c == nil {
		delete(m, s)
		return
	}
	m[s] = c
}
