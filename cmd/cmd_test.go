package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/config"
	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

const validYAML = `
scraper:
  start_url: https://example.com/
  max_depth: 2
  max_pages: 5
logging:
  level: error
`

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, validYAML)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--config", path})

	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "configuration ok: start_url=https://example.com/")
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, `
scraper:
  start_url: https://example.com/
  enable_adaptive_rate_limiting: true
  min_delay_between_requests: 3s
  max_delay_between_requests: 1s
`)
	require.Equal(t, exitUsage, run(context.Background(), []string{"validate", "--config", path}))
}

func TestCrawlCommandExitCodes(t *testing.T) {
	path := writeConfig(t, validYAML)

	tests := []struct {
		name   string
		result crawler.RunResult
		err    error
		want   int
	}{
		{
			name:   "completed",
			result: crawler.RunResult{RunID: "r1", Status: crawler.RunCompleted},
			want:   exitOK,
		},
		{
			name:   "failed",
			result: crawler.RunResult{RunID: "r2", Status: crawler.RunFailed},
			err:    &crawler.FatalRunError{Err: crawler.ErrStoreUnavailable},
			want:   exitFailed,
		},
		{
			name:   "stopped",
			result: crawler.RunResult{RunID: "r3", Status: crawler.RunStopped},
			want:   exitStopped,
		},
		{
			name: "configuration",
			err:  &crawler.ConfigurationError{Field: "max_pages", Reason: "must be > 0"},
			want: exitUsage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRunner{result: tt.result, err: tt.err}
			stubApp(t, fake, nil)

			require.Equal(t, tt.want, run(context.Background(), []string{"crawl", "--config", path}))
			require.Equal(t, 1, fake.runs)
			require.True(t, fake.closed, "application is closed after the crawl")
		})
	}
}

func TestCrawlCommandReportsInitFailure(t *testing.T) {
	path := writeConfig(t, validYAML)
	stubApp(t, nil, errors.New("postgres unreachable"))

	require.Equal(t, exitFailed, run(context.Background(), []string{"crawl", "--config", path}))
}

func TestServeCommandExitsAfterRun(t *testing.T) {
	path := writeConfig(t, validYAML)
	fake := &fakeRunner{result: crawler.RunResult{RunID: "r9", Status: crawler.RunCompleted}}
	stubApp(t, fake, nil)

	code := run(context.Background(), []string{"serve", "--exit-after-run", "--config", path})

	require.Equal(t, exitOK, code)
	require.Equal(t, 1, fake.runs)
	require.True(t, fake.served)
	require.True(t, fake.closed)
}

func TestMissingConfigFile(t *testing.T) {
	code := run(context.Background(), []string{"crawl", "--config", filepath.Join(t.TempDir(), "nope.yaml")})
	require.Equal(t, exitUsage, code)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func stubApp(t *testing.T, runner Runner, err error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (Runner, error) {
		if err != nil {
			return nil, err
		}
		return runner, nil
	}
	t.Cleanup(func() { newApp = orig })
}

type fakeRunner struct {
	result crawler.RunResult
	err    error

	runs   int
	served bool
	closed bool
}

func (f *fakeRunner) RunOnce(context.Context) (crawler.RunResult, error) {
	f.runs++
	return f.result, f.err
}

func (f *fakeRunner) Serve(ctx context.Context) error {
	f.served = true
	<-ctx.Done()
	return nil
}

func (f *fakeRunner) Close(context.Context) error {
	f.closed = true
	return nil
}
