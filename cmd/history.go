package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/service"
	"github.com/xkilldash9x/formpilot/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <host|url>",
		Short: "List recent stored results for a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database URL is not configured (hint: check FORMPILOT_DATABASE_URL)")
			}
			logger := observability.GetLogger()

			host := args[0]
			if h, err := orchestrator.HostOf(host); err == nil {
				host = h
			} else if h, err := orchestrator.HostOf("https://" + host); err == nil {
				host = h
			}

			dbPool, err := service.InitializeDatabase(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer dbPool.Close()

			s, err := store.New(ctx, dbPool, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize database store: %w", err)
			}
			results, err := s.RecentResults(ctx, host, limit)
			if err != nil {
				return err
			}
			views := make([]schemas.ResultView, len(results))
			for i, r := range results {
				views[i] = r.View()
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results")
	return cmd
}
