package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/detect"
	"github.com/xkilldash9x/formpilot/internal/fieldmap"
	"github.com/xkilldash9x/formpilot/internal/fill"
	"github.com/xkilldash9x/formpilot/internal/htmldom"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

type slotPreview struct {
	Ref   string `json:"ref"`
	Tag   string `json:"tag"`
	Type  string `json:"type,omitempty"`
	Name  string `json:"name,omitempty"`
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
}

type candidatePreview struct {
	Ref    string                 `json:"ref"`
	Score  int                    `json:"score"`
	Core   bool                   `json:"core"`
	Slots  map[string]slotPreview `json:"slots"`
	Filled []string               `json:"filled,omitempty"`
	Failed []string               `json:"failed,omitempty"`
}

type inspectReport struct {
	URL        string             `json:"url"`
	Candidates []candidatePreview `json:"candidates"`
}

func newInspectCmd() *cobra.Command {
	var (
		all bool
		pf  *payloadFlags
	)

	cmd := &cobra.Command{
		Use:   "inspect <url|file>",
		Short: "Show the detected forms and field mapping without a browser",
		Long: `Parses the page statically and prints the ranked form candidates with the
control bound to each slot. When a payload is given the fill is rehearsed on
the parsed document and the values that would be written are shown. Nothing
is submitted.

Visibility is judged from attributes and inline styles only, so pages that
build their forms with script may differ from what the browser sees.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			payload, err := pf.build(cmd)
			if err != nil {
				return err
			}
			doc, err := loadDocument(ctx, args[0], cfg, logger)
			if err != nil {
				return err
			}

			limit := cfg.Submit.MaxCandidates
			if all {
				limit = 0
			}
			report, err := inspect(ctx, doc, payload, limit, logger)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show every candidate, not just the ones that would be tried")
	pf = addPayloadFlags(cmd)
	return cmd
}

// loadDocument parses a local file when target names one, otherwise fetches
// target over HTTP.
func loadDocument(ctx context.Context, target string, cfg *config.Config, logger *zap.Logger) (*htmldom.Document, error) {
	if st, err := os.Stat(target); err == nil && !st.IsDir() {
		data, err := os.ReadFile(target)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", target, err)
		}
		abs, _ := filepath.Abs(target)
		return htmldom.Parse(string(data), htmldom.WithURL("file://"+abs))
	}

	fetcher := htmldom.NewFetcher(logger, cfg.Browser.UserAgent, cfg.Submit.NavTimeout, 2)
	body, final, err := fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return htmldom.Parse(body, htmldom.WithURL(final))
}

func inspect(ctx context.Context, doc *htmldom.Document, payload schemas.Payload, limit int, logger *zap.Logger) (inspectReport, error) {
	u, _ := doc.URL(ctx)
	report := inspectReport{URL: u, Candidates: []candidatePreview{}}

	cands := detect.New(logger).FindCandidates(ctx, doc)
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	rehearse := !payload.IsZero()
	filler := fill.New(logger)

	for _, c := range cands {
		form, err := doc.Form(ctx, c.Ref())
		if err != nil {
			return report, fmt.Errorf("failed to snapshot form %s: %w", c.Ref(), err)
		}
		m := fieldmap.Map(form)
		p := candidatePreview{Ref: c.Ref(), Score: c.Score, Core: m.HasCore(), Slots: map[string]slotPreview{}}

		if rehearse && p.Core {
			rep := filler.Fill(ctx, doc, m, payload, nil)
			p.Filled, p.Failed = rep.Filled, rep.Failed
		}
		for _, s := range m.Slots() {
			ctl := m.Get(s)
			sp := slotPreview{Ref: ctl.Ref, Tag: ctl.Tag, Type: ctl.Type, Name: ctl.Name, Label: ctl.LabelText}
			if rehearse {
				sp.Value = doc.Value(ctl.Ref)
			}
			p.Slots[string(s)] = sp
		}
		report.Candidates = append(report.Candidates, p)
	}
	return report, nil
}
