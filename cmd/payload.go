package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// payloadFlags are the per-field overrides accepted by submit.
type payloadFlags struct {
	file    string
	values  map[string]*string
	noAgree bool
}

var payloadFields = []struct {
	flag  string
	usage string
	set   func(p *schemas.Payload, v string)
}{
	{"name", "full name", func(p *schemas.Payload, v string) { p.Name = v }},
	{"sei", "family name", func(p *schemas.Payload, v string) { p.Sei = v }},
	{"mei", "given name", func(p *schemas.Payload, v string) { p.Mei = v }},
	{"sei-kana", "family name reading", func(p *schemas.Payload, v string) { p.SeiKana = v }},
	{"mei-kana", "given name reading", func(p *schemas.Payload, v string) { p.MeiKana = v }},
	{"kana", "full name reading", func(p *schemas.Payload, v string) { p.Kana = v }},
	{"company", "company name", func(p *schemas.Payload, v string) { p.Company = v }},
	{"department", "department", func(p *schemas.Payload, v string) { p.Department = v }},
	{"title", "job title", func(p *schemas.Payload, v string) { p.Title = v }},
	{"email", "email address", func(p *schemas.Payload, v string) { p.Email = v }},
	{"phone", "phone number", func(p *schemas.Payload, v string) { p.Phone = v }},
	{"zip", "postal code", func(p *schemas.Payload, v string) { p.Zip = v }},
	{"prefecture", "prefecture", func(p *schemas.Payload, v string) { p.Prefecture = v }},
	{"address1", "address line 1", func(p *schemas.Payload, v string) { p.Address1 = v }},
	{"address2", "address line 2", func(p *schemas.Payload, v string) { p.Address2 = v }},
	{"subject", "inquiry subject", func(p *schemas.Payload, v string) { p.Subject = v }},
	{"message", "message body", func(p *schemas.Payload, v string) { p.Message = v }},
	{"type", "inquiry type", func(p *schemas.Payload, v string) { p.Type = v }},
}

func addPayloadFlags(cmd *cobra.Command) *payloadFlags {
	pf := &payloadFlags{values: make(map[string]*string, len(payloadFields))}
	cmd.Flags().StringVarP(&pf.file, "payload", "p", "", "payload file (JSON or YAML); field flags override it")
	for _, f := range payloadFields {
		pf.values[f.flag] = cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().BoolVar(&pf.noAgree, "no-agree", false, "leave consent checkboxes unticked")
	return pf
}

// build loads the payload file, if any, then applies the field flags that
// were set explicitly.
func (pf *payloadFlags) build(cmd *cobra.Command) (schemas.Payload, error) {
	var p schemas.Payload
	if pf.file != "" {
		loaded, err := loadPayload(pf.file)
		if err != nil {
			return p, err
		}
		p = loaded
	}
	for _, f := range payloadFields {
		if cmd.Flags().Changed(f.flag) {
			f.set(&p, *pf.values[f.flag])
		}
	}
	if pf.noAgree {
		no := false
		p.Agree = &no
	}
	return p, nil
}

// loadPayload reads a payload from path, or stdin when path is "-".
func loadPayload(path string) (schemas.Payload, error) {
	var p schemas.Payload
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return p, fmt.Errorf("failed to read payload: %w", err)
	}
	return decodePayload(data, filepath.Ext(path))
}

func decodePayload(data []byte, ext string) (schemas.Payload, error) {
	var p schemas.Payload
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("failed to parse YAML payload: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("failed to parse JSON payload: %w", err)
		}
	}
	return p, nil
}

// writeJSON prints v indented.
func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
