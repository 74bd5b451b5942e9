// Package fill writes a payload into a mapped form. Every write is
// independent: a failure on one control is logged and the rest proceed.
package fill

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/dom"
	"github.com/xkilldash9x/formpilot/internal/fieldmap"
)

// OnFill is invoked after each successful write.
type OnFill func(slot string)

// Report summarizes one fill pass.
type Report struct {
	Filled    []string
	Prefilled []string
	Failed    []string
}

func (r *Report) ok(slot string) { r.Filled = append(r.Filled, slot) }

// Count returns the number of successful writes.
func (r Report) Count() int { return len(r.Filled) }

// Filler drives the page writes.
type Filler struct {
	logger *zap.Logger
}

// New creates a Filler.
func New(logger *zap.Logger) *Filler {
	return &Filler{logger: logger.Named("fill")}
}

type pass struct {
	f      *Filler
	ctx    context.Context
	page   dom.Page
	onFill OnFill
	rep    Report
}

func (p *pass) done(slot string) {
	p.rep.ok(slot)
	if p.onFill != nil {
		p.onFill(slot)
	}
}

func (p *pass) fail(slot, ref string, err error) {
	p.rep.Failed = append(p.rep.Failed, slot)
	p.f.logger.Debug("Field write failed.", zap.String("slot", slot), zap.String("ref", ref), zap.Error(err))
}

// write fills a text control. Empty values and pre-filled controls are
// skipped.
func (p *pass) write(slot string, c *dom.Control, value string) bool {
	if c == nil || value == "" {
		return false
	}
	if strings.TrimSpace(c.Value) != "" {
		p.rep.Prefilled = append(p.rep.Prefilled, slot)
		return false
	}
	if err := p.page.Fill(p.ctx, c.Ref, value); err != nil {
		p.fail(slot, c.Ref, err)
		return false
	}
	p.done(slot)
	return true
}

func (p *pass) choose(slot string, c *dom.Control, o dom.Option) {
	if err := p.page.Select(p.ctx, c.Ref, by(o)); err != nil {
		p.fail(slot, c.Ref, err)
		return
	}
	p.done(slot)
}

func (p *pass) check(slot string, c *dom.Control) {
	if c == nil || c.Checked {
		return
	}
	if err := p.page.SetChecked(p.ctx, c.Ref, true); err != nil {
		p.fail(slot, c.Ref, err)
		return
	}
	p.done(slot)
}

// Fill writes payload into the controls of m.
func (f *Filler) Fill(ctx context.Context, page dom.Page, m fieldmap.FieldMap, payload schemas.Payload, onFill OnFill) Report {
	p := &pass{f: f, ctx: ctx, page: page, onFill: onFill}
	w := func(s fieldmap.Slot, v string) bool { return p.write(string(s), m.Get(s), v) }

	sei, mei := payload.SplitName()
	full := payload.FullName()
	w(fieldmap.SlotName, full)
	switch {
	case m.Has(fieldmap.SlotFamilyName) && m.Has(fieldmap.SlotGivenName):
		w(fieldmap.SlotFamilyName, sei)
		w(fieldmap.SlotGivenName, mei)
	case m.Has(fieldmap.SlotFamilyName):
		w(fieldmap.SlotFamilyName, full)
	case m.Has(fieldmap.SlotGivenName):
		w(fieldmap.SlotGivenName, full)
	}

	kana := payload.FullKana()
	switch {
	case m.Has(fieldmap.SlotFamilyKana) && m.Has(fieldmap.SlotGivenKana):
		w(fieldmap.SlotFamilyKana, payload.SeiKana)
		w(fieldmap.SlotGivenKana, payload.MeiKana)
	case m.Has(fieldmap.SlotFamilyKana):
		w(fieldmap.SlotFamilyKana, kana)
	case m.Has(fieldmap.SlotGivenKana):
		w(fieldmap.SlotGivenKana, kana)
	}
	w(fieldmap.SlotKana, kana)

	w(fieldmap.SlotCompany, payload.Company)
	w(fieldmap.SlotDepartment, payload.Department)
	w(fieldmap.SlotTitle, payload.Title)
	w(fieldmap.SlotEmail, payload.Email)
	w(fieldmap.SlotEmailConfirm, payload.Email)

	f.fillPhone(p, m, payload)

	w(fieldmap.SlotZip, payload.Zip)
	if c := m.Get(fieldmap.SlotPrefecture); c != nil && payload.Prefecture != "" {
		if strings.EqualFold(c.Tag, "select") {
			if o, ok := matchOption(c.Options, payload.Prefecture); ok {
				p.choose(string(fieldmap.SlotPrefecture), c, o)
			}
		} else {
			w(fieldmap.SlotPrefecture, payload.Prefecture)
		}
	}
	w(fieldmap.SlotAddress1, payload.Address1)
	w(fieldmap.SlotAddress2, payload.Address2)
	w(fieldmap.SlotSubject, payload.Subject)
	w(fieldmap.SlotMessage, payload.Message)

	if c := m.Get(fieldmap.SlotType); c != nil && payload.Type != "" {
		o, ok := matchOption(c.Options, payload.Type)
		if !ok {
			o, ok = preferOtherOrFirst(c.Options)
		}
		if ok {
			p.choose(string(fieldmap.SlotType), c, o)
		}
	}

	if payload.Consent() {
		p.check(string(fieldmap.SlotConsent), m.Get(fieldmap.SlotConsent))
	}

	f.logger.Debug("Form filled.", zap.Strings("filled", p.rep.Filled), zap.Int("failed", len(p.rep.Failed)))
	return p.rep
}

func (f *Filler) fillPhone(p *pass, m fieldmap.FieldMap, payload schemas.Payload) {
	parts := payload.PhoneParts
	if len(parts) < 2 {
		parts = SplitPhoneJP(payload.Phone)
	}
	t1, t2, t3 := m.Get(fieldmap.SlotTel1), m.Get(fieldmap.SlotTel2), m.Get(fieldmap.SlotTel3)
	if t1 == nil || t2 == nil {
		phone := payload.Phone
		if phone == "" {
			phone = strings.Join(parts, "-")
		}
		p.write(string(fieldmap.SlotPhone), m.Get(fieldmap.SlotPhone), phone)
		return
	}
	switch {
	case len(parts) >= 3 && t3 != nil:
		p.write(string(fieldmap.SlotTel1), t1, parts[0])
		p.write(string(fieldmap.SlotTel2), t2, parts[1])
		p.write(string(fieldmap.SlotTel3), t3, strings.Join(parts[2:], ""))
	case len(parts) >= 2:
		p.write(string(fieldmap.SlotTel1), t1, parts[0])
		p.write(string(fieldmap.SlotTel2), t2, strings.Join(parts[1:], ""))
	case len(parts) == 1:
		p.write(string(fieldmap.SlotTel1), t1, parts[0])
	}
}

// FillAnything is the hint-only filler. It classifies every usable control
// by its own attribute text, checks checkboxes, picks the first real option
// of each select or datalist input and writes the message into textareas.
func (f *Filler) FillAnything(ctx context.Context, page dom.Page, form *dom.Form, payload schemas.Payload, onFill OnFill) Report {
	p := &pass{f: f, ctx: ctx, page: page, onFill: onFill}
	if form == nil {
		return p.rep
	}
	sei, mei := payload.SplitName()
	values := map[fieldmap.Slot]string{
		fieldmap.SlotCompany:      payload.Company,
		fieldmap.SlotAddress1:     payload.Address1,
		fieldmap.SlotAddress2:     payload.Address2,
		fieldmap.SlotGivenKana:    payload.MeiKana,
		fieldmap.SlotGivenName:    mei,
		fieldmap.SlotFamilyKana:   payload.SeiKana,
		fieldmap.SlotFamilyName:   sei,
		fieldmap.SlotEmail:        payload.Email,
		fieldmap.SlotEmailConfirm: payload.Email,
		fieldmap.SlotZip:          payload.Zip,
		fieldmap.SlotPhone:        payload.Phone,
		fieldmap.SlotPrefecture:   payload.Prefecture,
		fieldmap.SlotKana:         payload.FullKana(),
		fieldmap.SlotName:         payload.FullName(),
	}

	textareas := 0
	for i := range form.Controls {
		if strings.EqualFold(form.Controls[i].Tag, "textarea") && fieldmap.IsFillable(&form.Controls[i]) {
			textareas++
		}
	}

	for i := range form.Controls {
		c := &form.Controls[i]
		if !fieldmap.IsFillable(c) || c.Disabled {
			continue
		}
		tagName, typ := strings.ToLower(c.Tag), strings.ToLower(c.Type)
		hint := fieldmap.Hint(c)
		switch {
		case tagName == "input" && typ == "checkbox":
			if payload.Consent() {
				p.check("checkbox", c)
			}
		case tagName == "select":
			if currentIsPlaceholder(c) {
				if o, ok := firstReal(c.Options); ok {
					p.choose("select", c, o)
				}
			}
		case tagName == "textarea":
			if textareas == 1 || fieldmap.IsMessageHint(hint) {
				p.write(string(fieldmap.SlotMessage), c, payload.Message)
			}
		case tagName == "input" && c.List != "":
			if o, ok := firstReal(c.Options); ok {
				p.write("datalist", c, o.Value)
			}
		case tagName == "input":
			if typ == "radio" || typ == "submit" || typ == "button" || typ == "image" || typ == "reset" || typ == "file" {
				continue
			}
			if slot, ok := fieldmap.ClassifyHint(hint); ok && slot != fieldmap.SlotConsent {
				p.write(string(slot), c, values[slot])
			}
		}
	}
	f.logger.Debug("Form filled by hint.", zap.Strings("filled", p.rep.Filled))
	return p.rep
}
