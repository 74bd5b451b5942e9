package schemas

import (
	"strings"
)

// -- Submission Payload --

// Payload carries the semantic contact-form values supplied by the caller.
// Every member is optional. An empty string means "not supplied" and is never
// written into a form.
type Payload struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Sei     string `json:"sei,omitempty" yaml:"sei,omitempty"`
	Mei     string `json:"mei,omitempty" yaml:"mei,omitempty"`
	SeiKana string `json:"sei_kana,omitempty" yaml:"sei_kana,omitempty"`
	MeiKana string `json:"mei_kana,omitempty" yaml:"mei_kana,omitempty"`
	Kana    string `json:"kana,omitempty" yaml:"kana,omitempty"`

	Company    string `json:"company,omitempty" yaml:"company,omitempty"`
	Department string `json:"department,omitempty" yaml:"department,omitempty"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`

	Email      string   `json:"email,omitempty" yaml:"email,omitempty"`
	Phone      string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	PhoneParts []string `json:"phone_parts,omitempty" yaml:"phone_parts,omitempty"`

	Zip        string `json:"zip,omitempty" yaml:"zip,omitempty"`
	Prefecture string `json:"prefecture,omitempty" yaml:"prefecture,omitempty"`
	Address1   string `json:"address1,omitempty" yaml:"address1,omitempty"`
	Address2   string `json:"address2,omitempty" yaml:"address2,omitempty"`

	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`

	// Agree defaults to true when nil. Only an explicit false leaves consent
	// boxes unchecked.
	Agree *bool `json:"agree,omitempty" yaml:"agree,omitempty"`
}

// Consent reports whether consent checkboxes should be ticked.
func (p Payload) Consent() bool {
	return p.Agree == nil || *p.Agree
}

// SplitName resolves the family/given pair. Explicit Sei/Mei win; otherwise
// Name is split on whitespace with the first token as the family name and the
// remainder as the given name.
func (p Payload) SplitName() (sei, mei string) {
	sei, mei = p.Sei, p.Mei
	if (sei != "" && mei != "") || strings.TrimSpace(p.Name) == "" {
		return sei, mei
	}
	parts := strings.Fields(p.Name)
	if sei == "" {
		sei = parts[0]
	}
	if mei == "" && len(parts) > 1 {
		mei = strings.Join(parts[1:], " ")
	}
	return sei, mei
}

// FullName joins the resolved family and given names with a single space.
func (p Payload) FullName() string {
	sei, mei := p.SplitName()
	return strings.TrimSpace(strings.Join(nonEmpty(sei, mei), " "))
}

// FullKana returns Kana, or the joined kana pair when Kana is empty.
func (p Payload) FullKana() string {
	if p.Kana != "" {
		return p.Kana
	}
	return strings.TrimSpace(strings.Join(nonEmpty(p.SeiKana, p.MeiKana), " "))
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// BoolPtr is a small helper for building payloads with an explicit Agree.
func BoolPtr(b bool) *bool { return &b }

// IsZero reports whether no value at all was supplied.
func (p Payload) IsZero() bool {
	return len(p.PhoneParts) == 0 && p.Agree == nil &&
		len(nonEmpty(p.Name, p.Sei, p.Mei, p.SeiKana, p.MeiKana, p.Kana,
			p.Company, p.Department, p.Title, p.Email, p.Phone,
			p.Zip, p.Prefecture, p.Address1, p.Address2,
			p.Subject, p.Message, p.Type)) == 0
}
