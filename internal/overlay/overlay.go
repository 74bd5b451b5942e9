// Package overlay disarms popups and modal backdrops that intercept clicks
// on a contact form.
package overlay

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/dom"
)

// StyleID is the id of the injected style element. Reusing it keeps
// repeated neutralization from stacking rules.
const StyleID = "formpilot-overlay-kill"

// ClickBudget bounds each closer click.
const ClickBudget = time.Second

// PassThroughSelectors get pointer-events disabled.
var PassThroughSelectors = []string{
	".mailpoet_form_popup_overlay",
	".mailpoet_form_popup",
	".mpopup-overlay",
	".popup-overlay",
	".modal-backdrop",
	".remodal-overlay",
	".remodal-wrapper",
	".pum-overlay",
	".pum-container",
	".mfp-bg",
	".mfp-wrap",
	`div[class*="overlay"][class*="active"]`,
	`div[id*="overlay"][class*="active"]`,
}

// CloserSelectors are clicked in order, first visible match only.
var CloserSelectors = []string{
	".mailpoet_form_popup_close",
	".mailpoet_close",
	".pum-close",
	".mfp-close",
	`.modal-close, .close, button[aria-label="Close"]`,
	".mailpoet_form_popup_overlay",
	".pum-overlay",
	".mfp-bg",
}

// RemoveSelectors are deleted from the DOM as a last resort.
var RemoveSelectors = []string{
	".mailpoet_form_popup_overlay",
	".mailpoet_form_popup",
	"#mp_form_popup1",
	".pum-overlay",
	".pum-container",
	".mfp-bg",
	".mfp-wrap",
	".modal-backdrop",
	".remodal-overlay",
	".remodal-wrapper",
}

// CSS returns the pass-through stylesheet.
func CSS() string {
	return strings.Join(PassThroughSelectors, ",\n") + " {\n  pointer-events: none !important;\n}\n"
}

// Neutralizer runs the overlay playbook.
type Neutralizer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Neutralizer {
	return &Neutralizer{logger: logger.Named("overlay")}
}

// Neutralize injects the pass-through style, clicks known closers, presses
// Escape and removes stubborn overlay nodes. Every step is best effort and
// the whole call is idempotent.
func (n *Neutralizer) Neutralize(ctx context.Context, page dom.Page) {
	if err := page.InjectStyle(ctx, StyleID, CSS()); err != nil {
		n.logger.Debug("Overlay style injection failed.", zap.Error(err))
	}

	for _, sel := range CloserSelectors {
		if ctx.Err() != nil {
			return
		}
		clickCtx, cancel := context.WithTimeout(ctx, ClickBudget)
		clicked, err := page.ClickSelector(clickCtx, sel)
		cancel()
		if err != nil {
			n.logger.Debug("Overlay closer click failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if clicked {
			n.logger.Debug("Overlay closer clicked.", zap.String("selector", sel))
		}
	}

	if err := page.PressKey(ctx, dom.KeyEscape); err != nil {
		n.logger.Debug("Escape key press failed.", zap.Error(err))
	}

	removed := 0
	for _, sel := range RemoveSelectors {
		c, err := page.RemoveSelector(ctx, sel)
		if err != nil {
			n.logger.Debug("Overlay removal failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		removed += c
	}
	if removed > 0 {
		n.logger.Debug("Overlay nodes removed.", zap.Int("count", removed))
	}
}
