package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/service"
)

const persistTimeout = 30 * time.Second

func newSubmitCmd(factory factoryProvider) *cobra.Command {
	var (
		static     bool
		discover   bool
		progress   bool
		screenshot string
		id         string
		pf         *payloadFlags
	)

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Fill and submit the contact form at a URL",
		Long: `Opens the page, finds the most likely contact form, fills it from the
payload and submits it. The result is printed as JSON.

With --discover the URL is treated as a site root: candidate contact pages
are ranked by the discovery service and tried best first.`,
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

			components, err := factory(cfg, static, logger).Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			if progress {
				stop := streamEvents(components.Submitter.Events(), cmd.ErrOrStderr())
				defer stop()
			}

			var res schemas.Result
			if discover {
				res, err = components.Submitter.RunDiscovered(ctx, args[0], payload)
				if err != nil {
					return err
				}
			} else {
				res = components.Submitter.Submit(ctx, schemas.Request{ID: id, URL: args[0], Payload: payload})
			}

			persist(components, res, logger)
			if screenshot != "" && len(res.Screenshot) > 0 {
				if err := os.WriteFile(screenshot, res.Screenshot, 0o644); err != nil {
					logger.Warn("Failed to write screenshot.", zap.String("path", screenshot), zap.Error(err))
				}
			}
			return writeJSON(cmd.OutOrStdout(), res.View())
		},
	}

	cmd.Flags().BoolVar(&static, "static", false, "fetch pages over plain HTTP instead of driving a browser")
	cmd.Flags().BoolVar(&discover, "discover", false, "treat the URL as a site root and try discovered contact pages")
	cmd.Flags().BoolVar(&progress, "progress", false, "print progress events to stderr")
	cmd.Flags().StringVar(&screenshot, "screenshot", "", "write the failure screenshot to this file")
	cmd.Flags().StringVar(&id, "id", "", "attempt ID (default: random UUID)")
	cmd.Flags().Duration("timeout", 0, "overall request timeout (overrides submit.request_timeout)")
	cmd.Flags().Bool("alt-filler", false, "use the type-driven alternate filler")
	bindFlag(cmd, "timeout", "submit.request_timeout")
	bindFlag(cmd, "alt-filler", "submit.alt_filler")

	pf = addPayloadFlags(cmd)
	return cmd
}

// persist queues res for the store when one is configured.
func persist(c *service.Components, res schemas.Result, logger *zap.Logger) {
	sink := c.ResultSink()
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := sink.Write(ctx, res); err != nil {
		logger.Warn("Failed to queue result for persistence.", zap.String("id", res.ID), zap.Error(err))
	}
}

// streamEvents prints progress events as JSON lines until stopped.
func streamEvents(events <-chan schemas.ProgressEvent, w io.Writer) (stop func()) {
	return consumeEvents(events, func(ev schemas.ProgressEvent) {
		if b, err := json.Marshal(ev); err == nil {
			fmt.Fprintln(w, string(b))
		}
	})
}

// consumeEvents hands each event to fn on its own goroutine until the
// returned stop function is called.
func consumeEvents(events <-chan schemas.ProgressEvent, fn func(schemas.ProgressEvent)) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				fn(ev)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
