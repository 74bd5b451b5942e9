package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/server"
)

func newServeCmd(factory factoryProvider) *cobra.Command {
	var static bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the submit API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			components, err := factory(cfg, static, logger).Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			var sub server.Submitter = components.Submitter
			if sink := components.ResultSink(); sink != nil {
				sub = persistingSubmitter{Submitter: components.Submitter, sink: sink, logger: logger}
			}
			var opts []server.Option
			if components.Discovery != nil {
				opts = append(opts, server.WithDiscovery(components.Discovery))
			}

			stop := logEvents(components.Submitter.Events(), logger)
			defer stop()

			return server.New(cfg.Server, sub, components.Pool, logger, opts...).Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&static, "static", false, "fetch pages over plain HTTP instead of driving a browser")
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	bindFlag(cmd, "addr", "server.addr")
	return cmd
}

// persistingSubmitter records every result it returns.
type persistingSubmitter struct {
	server.Submitter
	sink   engine.ResultSink
	logger *zap.Logger
}

func (p persistingSubmitter) Submit(ctx context.Context, req schemas.Request) schemas.Result {
	res := p.Submitter.Submit(ctx, req)
	p.write(res)
	return res
}

func (p persistingSubmitter) SubmitBatch(ctx context.Context, reqs []schemas.Request) []schemas.Result {
	results := p.Submitter.SubmitBatch(ctx, reqs)
	for _, r := range results {
		p.write(r)
	}
	return results
}

func (p persistingSubmitter) write(res schemas.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.sink.Write(ctx, res); err != nil {
		p.logger.Warn("Failed to queue result for persistence.", zap.String("id", res.ID), zap.Error(err))
	}
}

// logEvents forwards progress events to the debug log until stopped.
func logEvents(events <-chan schemas.ProgressEvent, logger *zap.Logger) (stop func()) {
	l := logger.Named("progress")
	return consumeEvents(events, func(ev schemas.ProgressEvent) {
		l.Debug("Progress.",
			zap.String("attempt_id", ev.AttemptID),
			zap.String("kind", string(ev.Kind)),
			zap.String("url", ev.URL),
			zap.Int("candidate", ev.Candidate),
			zap.String("slot", ev.Slot),
			zap.String("verdict", string(ev.Verdict)))
	})
}

