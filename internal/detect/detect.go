// Package detect finds and ranks candidate contact-form roots on a page.
package detect

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

// Score weights for the root heuristic.
const (
	WeightEmail    = 25
	WeightTextarea = 20
	WeightSubmit   = 10
	WeightPassword = -40
	WeightSearch   = -20

	// RescueThreshold is the minimum score a non-form block needs to be kept.
	RescueThreshold = 25
)

// FormRootSelectors match explicit form roots, including vendor form widgets.
var FormRootSelectors = []string{
	"form",
	"[role=form]",
	".contact-form",
	".wpcf7-form",
	".mw_wp_form",
	".hs-form",
	".mktoForm",
	".elementor-form",
}

// SubmitSelectors match explicit submit controls.
var SubmitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
}

// SubmitTextPattern matches button labels that submit a form.
const SubmitTextPattern = `(?i)(送信|submit|send)`

// RescueSelectors are generic blocks scanned when a form is not marked up
// with a <form> element.
var RescueSelectors = []string{"section", "div", "form"}

// DefaultQuery is the root query used by FindCandidates.
var DefaultQuery = dom.RootQuery{
	RootSelectors:    FormRootSelectors,
	SubmitSelectors:  SubmitSelectors,
	SubmitTextRegexp: SubmitTextPattern,
	RescueSelectors:  RescueSelectors,
	IncludeFrames:    true,
}

// Candidate is a ranked form root.
type Candidate struct {
	Root  dom.RootInfo
	Score int
}

// Ref returns the root's element ref.
func (c Candidate) Ref() string { return c.Root.Ref }

// Score computes the heuristic score of a root. The submit bonus counts once.
func Score(r dom.RootInfo) int {
	s := 0
	if r.HasEmail {
		s += WeightEmail
	}
	if r.HasTextarea {
		s += WeightTextarea
	}
	if r.HasSubmit {
		s += WeightSubmit
	}
	if r.HasPassword {
		s += WeightPassword
	}
	if r.HasSearch {
		s += WeightSearch
	}
	return s
}

// Rank scores roots, drops rescue blocks below the threshold or containing
// password/search inputs, collapses duplicate refs, and returns candidates in
// descending score order. Ties keep discovery order.
func Rank(roots []dom.RootInfo) []Candidate {
	seen := make(map[string]bool, len(roots))
	out := make([]Candidate, 0, len(roots))
	for _, r := range roots {
		if r.Ref == "" || seen[r.Ref] {
			continue
		}
		score := Score(r)
		if r.Rescue && (r.HasPassword || r.HasSearch || score < RescueThreshold) {
			continue
		}
		seen[r.Ref] = true
		out = append(out, Candidate{Root: r, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Detector finds form candidates on live pages.
type Detector struct {
	logger *zap.Logger
	query  dom.RootQuery
}

// New creates a detector using DefaultQuery.
func New(logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("detect"), query: DefaultQuery}
}

// FindCandidates collects and ranks roots from the page, including same-origin
// iframes. It never fails: a page error yields an empty list.
func (d *Detector) FindCandidates(ctx context.Context, page dom.Page) []Candidate {
	roots, err := page.FormRoots(ctx, d.query)
	if err != nil {
		d.logger.Debug("Form root collection failed; treating as no candidates.", zap.Error(err))
		return nil
	}
	cands := Rank(roots)
	d.logger.Debug("Form candidates ranked.", zap.Int("roots", len(roots)), zap.Int("candidates", len(cands)))
	return cands
}
