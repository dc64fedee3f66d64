package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server alongside a crawl",
		Long: `Starts the ops HTTP server (health, metrics and run endpoints) and runs
one crawl. With --exit-after-run the process exits when the crawl ends;
otherwise the server keeps running until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := stateFrom(cmd.Context())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), st, func(a Runner) error {
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return a.Serve(gctx)
				})
				var crawlErr error
				g.Go(func() error {
					result, runErr := a.RunOnce(gctx)
					st.logger.Info("crawl finished",
						zap.String("run_id", result.RunID),
						zap.String("status", string(result.Status)),
					)
					crawlErr = crawlExit(result, runErr)
					if once {
						cancel()
					}
					return nil
				})
				if err := g.Wait(); err != nil {
					return err
				}
				return crawlErr
			})
		},
	}
	cmd.Flags().BoolVar(&once, "exit-after-run", false, "stop the ops server once the crawl ends")
	return cmd
}
