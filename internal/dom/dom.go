// Package dom defines the browser-agnostic view of a page that the form
// automation engine operates on. Element handles are opaque string refs
// assigned by the page implementation; everything the heuristics need is
// captured in serializable snapshots so they can run without a browser.
package dom

import (
	"context"
	"strings"
	"time"
)

// Option is one <option> of a select, or one entry of an input's datalist.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	HasValue bool   `json:"hasValue"`
	Disabled bool   `json:"disabled"`
}

// Control is a snapshot of a single input, textarea, select or button.
type Control struct {
	Ref          string `json:"ref"`
	Index        int    `json:"index"`
	Tag          string `json:"tag"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	ID           string `json:"id"`
	Placeholder  string `json:"placeholder"`
	AriaLabel    string `json:"ariaLabel"`
	Class        string `json:"class"`
	Autocomplete string `json:"autocomplete"`
	List         string `json:"list"`
	Value        string `json:"value"`
	LabelText    string `json:"labelText"`
	Text         string `json:"text"`

	// Containers lists the refs of ancestor containers inside the form root,
	// nearest first.
	Containers []string `json:"containers"`

	Visible          bool   `json:"visible"`
	HiddenAttr       bool   `json:"hiddenAttr"`
	AriaHidden       bool   `json:"ariaHidden"`
	DisplayNone      bool   `json:"displayNone"`
	VisibilityHidden bool   `json:"visibilityHidden"`
	NoOffsetParent   bool   `json:"noOffsetParent"`
	TabIndex         string `json:"tabIndex"`
	Disabled         bool   `json:"disabled"`
	Checked          bool   `json:"checked"`

	Options []Option `json:"options,omitempty"`
}

// Container is an ancestor block of one or more controls. Tag and Class are
// used to match wrapper selectors; Text is its visible text.
type Container struct {
	Ref   string `json:"ref"`
	Order int    `json:"order"`
	Tag   string `json:"tag"`
	Class string `json:"class"`
	Text  string `json:"text"`
}

// HasClass reports whether the container carries the given class token.
func (c Container) HasClass(name string) bool {
	for _, tok := range strings.Fields(c.Class) {
		if tok == name {
			return true
		}
	}
	return false
}

// Form is the snapshot of one candidate form root.
type Form struct {
	Root       string      `json:"root"`
	Controls   []Control   `json:"controls"`
	Containers []Container `json:"containers"`
}

// Control returns the snapshot for ref, or nil.
func (f *Form) Control(ref string) *Control {
	for i := range f.Controls {
		if f.Controls[i].Ref == ref {
			return &f.Controls[i]
		}
	}
	return nil
}

// RootInfo summarizes a candidate form root for scoring.
type RootInfo struct {
	Ref         string `json:"ref"`
	Frame       int    `json:"frame"`
	Rescue      bool   `json:"rescue"`
	HasEmail    bool   `json:"hasEmail"`
	HasTextarea bool   `json:"hasTextarea"`
	HasSubmit   bool   `json:"hasSubmit"`
	HasPassword bool   `json:"hasPassword"`
	HasSearch   bool   `json:"hasSearch"`
}

// RootQuery describes how a page should collect candidate roots.
type RootQuery struct {
	RootSelectors    []string `json:"rootSelectors"`
	SubmitSelectors  []string `json:"submitSelectors"`
	SubmitTextRegexp string   `json:"submitTextRegexp"`
	RescueSelectors  []string `json:"rescueSelectors"`
	IncludeFrames    bool     `json:"includeFrames"`
}

// SignalQuery lists the selector families inspected after a submit.
type SignalQuery struct {
	SuccessSelectors []string `json:"successSelectors"`
	ErrorSelectors   []string `json:"errorSelectors"`
	CaptchaSelectors []string `json:"captchaSelectors"`
	SubmitSelector   string   `json:"submitSelector"`
}

// Signals is the post-submit page state the verdict classifier consumes.
type Signals struct {
	URL             string `json:"url"`
	// VisibleText holds one line per rendered text block. Form control
	// values are not part of it.
	VisibleText     string `json:"visibleText"`
	SuccessSelector bool   `json:"successSelector"`
	ErrorSelector   bool   `json:"errorSelector"`
	Captcha         bool   `json:"captcha"`
	SubmitDisabled  bool   `json:"submitDisabled"`
}

// SelectBy chooses an option either by its visible label or its value.
type SelectBy struct {
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
}

// Key names accepted by Page.PressKey.
const (
	KeyEnter  = "Enter"
	KeyEscape = "Escape"
)

// Page is a single browser tab the engine drives. Implementations must be
// safe to call from one goroutine at a time; the orchestrator never shares
// a page between attempts.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	FormRoots(ctx context.Context, q RootQuery) ([]RootInfo, error)
	Form(ctx context.Context, rootRef string) (*Form, error)

	Fill(ctx context.Context, ref, value string) error
	Select(ctx context.Context, ref string, by SelectBy) error
	SetChecked(ctx context.Context, ref string, checked bool) error
	Click(ctx context.Context, ref string) error
	PressKey(ctx context.Context, key string) error

	// InjectStyle installs css under a fixed element id, replacing any
	// previous content for that id.
	InjectStyle(ctx context.Context, id, css string) error
	// ClickSelector clicks the first visible match of selector and reports
	// whether anything was clicked.
	ClickSelector(ctx context.Context, selector string) (bool, error)
	// RemoveSelector deletes every match of selector and returns the count.
	RemoveSelector(ctx context.Context, selector string) (int, error)

	Signals(ctx context.Context, q SignalQuery) (*Signals, error)
	// WaitSettled blocks until a navigation completes or the network has been
	// idle briefly, or ctx expires.
	WaitSettled(ctx context.Context, quiet time.Duration) error
	Screenshot(ctx context.Context, quality int) ([]byte, error)
	Close(ctx context.Context) error
}
