package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitStopped = 3
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and exit",
		Long: `Runs a single crawl from scraper.start_url. The exit status is 0 when
the run completes, 1 when it fails, and 3 when it is interrupted.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	st, err := stateFrom(cmd.Context())
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), st, func(a Runner) error {
		result, runErr := a.RunOnce(cmd.Context())
		st.logger.Info("crawl command finished",
			zap.String("run_id", result.RunID),
			zap.String("status", string(result.Status)),
			zap.Int64("urls_processed", result.Counters.URLsProcessed),
			zap.Int64("changes_detected", result.Counters.ChangesDetected),
		)
		return crawlExit(result, runErr)
	})
}

func crawlExit(result crawler.RunResult, runErr error) error {
	var cfgErr *crawler.ConfigurationError
	switch {
	case errors.As(runErr, &cfgErr):
		return &exitError{code: exitUsage, err: runErr}
	case result.Status == crawler.RunStopped, errors.Is(runErr, context.Canceled):
		return &exitError{code: exitStopped, err: fmt.Errorf("crawl %s stopped", result.RunID)}
	case runErr != nil:
		return &exitError{code: exitFailed, err: runErr}
	case result.Status == crawler.RunFailed:
		return &exitError{code: exitFailed, err: fmt.Errorf("crawl %s failed: %s", result.RunID, result.LastError)}
	}
	return nil
}
