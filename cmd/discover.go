package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/internal/discovery"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

func newDiscoverCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "discover <root-url>",
		Short: "Rank likely contact pages of a site with the discovery service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			client, err := discovery.New(cfg.Discovery, observability.GetLogger())
			if errors.Is(err, discovery.ErrNotConfigured) {
				return fmt.Errorf("%w (hint: set discovery.url or FORMPILOT_DISCOVERY_URL)", err)
			}
			if err != nil {
				return err
			}

			found, err := client.Discover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !raw {
				found = discovery.FilterByScore(found, cfg.Discovery.MinScore)
			}
			return writeJSON(cmd.OutOrStdout(), found)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "show pages below discovery.min_score too")
	cmd.Flags().Int("top-n", 0, "number of pages to request (overrides discovery.top_n)")
	cmd.Flags().Int("min-score", 0, "minimum score to keep (overrides discovery.min_score)")
	bindFlag(cmd, "top-n", "discovery.top_n")
	bindFlag(cmd, "min-score", "discovery.min_score")
	return cmd
}
