package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

func newBatchCmd(factory factoryProvider) *cobra.Command {
	var (
		static bool
		follow bool
		poll   bool
		out    string
	)

	cmd := &cobra.Command{
		Use:   "batch <jobs.jsonl>",
		Short: "Submit every job in a JSON-lines file",
		Long: `Reads one {"id", "url", "payload"} object per line ("-" reads stdin) and
submits them through a worker pool. Results are written as JSON lines to
--out (default stdout) and to the database when one is configured.

With --follow the file is tailed and new lines are submitted as they are
appended, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			var src engine.Source
			switch {
			case args[0] == "-":
				if follow {
					return fmt.Errorf("--follow needs a file, not stdin")
				}
				src = engine.NewReaderSource(cmd.InOrStdin(), logger)
			case follow:
				src = engine.NewTailSource(args[0], poll, logger)
			default:
				src = engine.NewFileSource(args[0], logger)
			}

			var jsonl *engine.JSONLSink
			if out == "" || out == "-" {
				jsonl = engine.NewJSONLSink(cmd.OutOrStdout())
			} else {
				jsonl, err = engine.OpenJSONLSink(out)
				if err != nil {
					return err
				}
			}
			defer func() {
				if err := jsonl.Close(); err != nil {
					logger.Warn("Failed to close result file.", zap.Error(err))
				}
			}()

			components, err := factory(cfg, static, logger).Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			sinks := []engine.ResultSink{jsonl}
			if s := components.ResultSink(); s != nil {
				sinks = append(sinks, s)
			}
			eng, err := engine.New(cfg.Engine, logger, components.Submitter, sinks...)
			if err != nil {
				return err
			}

			summary, err := eng.Run(ctx, src)
			logger.Info("Batch finished.",
				zap.Int("total", summary.Total),
				zap.Any("status", summary.Status))
			fmt.Fprintf(cmd.ErrOrStderr(), "processed %d jobs: %v\n", summary.Total, summary.Status)
			return err
		},
	}

	cmd.Flags().BoolVar(&static, "static", false, "fetch pages over plain HTTP instead of driving a browser")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep reading lines appended to the file")
	cmd.Flags().BoolVar(&poll, "poll", false, "with --follow, poll the file instead of using inotify")
	cmd.Flags().StringVarP(&out, "out", "o", "", "result file, appended to (default stdout)")
	cmd.Flags().IntP("concurrency", "j", 0, "number of workers (overrides engine.worker_concurrency)")
	cmd.Flags().Float64("rate", 0, "maximum jobs started per second (overrides engine.rate_per_second)")
	bindFlag(cmd, "concurrency", "engine.worker_concurrency")
	bindFlag(cmd, "rate", "engine.rate_per_second")
	return cmd
}
