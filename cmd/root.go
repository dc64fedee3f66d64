// Package cmd defines the CLI commands of the webscraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/app"
	"github.com/uridolan77/WebScraping-sub002/internal/config"
	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/logging"
	"github.com/uridolan77/WebScraping-sub002/internal/telemetry"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Runner is the application surface the commands drive.
type Runner interface {
	RunOnce(ctx context.Context) (crawler.RunResult, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. Tests replace it with a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, app.Options{Logger: logger})
}

type stateKeyType struct{}

// cliState is built once per invocation by the root command.
type cliState struct {
	cfg    config.Config
	logger *zap.Logger
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "webscraper",
		Short:         "Adaptive crawl controller with change detection.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `webscraper crawls a site from a start URL, adapts its request rate per
domain, and records fingerprinted content versions so that changes between
runs can be detected and announced.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return &exitError{code: exitUsage, err: fmt.Errorf("load config: %w", err)}
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return &exitError{code: exitUsage, err: fmt.Errorf("init logger: %w", err)}
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), stateKeyType{}, &cliState{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if st, ok := cmd.Context().Value(stateKeyType{}).(*cliState); ok {
				_ = st.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newCrawlCmd(), newValidateCmd(), newServeCmd())
	return cmd
}

func stateFrom(ctx context.Context) (*cliState, error) {
	st, ok := ctx.Value(stateKeyType{}).(*cliState)
	if !ok || st == nil {
		return nil, errors.New("cli state not initialized")
	}
	return st, nil
}

// withApp builds the application, installs tracing, and always closes both.
func withApp(ctx context.Context, st *cliState, fn func(Runner) error) error {
	tp, err := telemetry.InitTracerProvider(ctx, "webscraper", Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			st.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	a, err := newApp(ctx, st.cfg, st.logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			st.logger.Warn("close application failed", zap.Error(err))
		}
	}()
	return fn(a)
}

// Execute runs the root command and exits with the command's status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(root.ErrOrStderr(), "error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailed
}
