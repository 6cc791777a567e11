package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/platform/logging"
)

type testConfig struct {
	Address string `env:"CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8080"`
	Mode    string `env:"CMD_TEST_MODE" envDefault:"server"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("CMD_TEST_MODE", "env-mode")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := testConfig{}
	require.NoError(t, ParseConfig(&cfg))
	fs.StringVar(&cfg.Address, "address", cfg.Address, "address")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "mode")

	require.NoError(t, ParseArgs(fs, []string{"-address", "flag:9001"}))
	assert.Equal(t, "flag:9001", cfg.Address)
	assert.Equal(t, "env-mode", cfg.Mode)
}

func TestParseConfigFromArgsBindsFlagsAfterEnv(t *testing.T) {
	t.Setenv("CMD_TEST_ADDRESS", "configarg:9000")
	t.Setenv("CMD_TEST_MODE", "configarg-mode")

	cfg := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	err := ParseConfigFromArgs(&cfg, fs, []string{"-address", "flag:9002"}, func(fs *flag.FlagSet, cfg *testConfig) {
		fs.StringVar(&cfg.Address, "address", cfg.Address, "address")
		fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "mode")
	})
	require.NoError(t, err)
	assert.Equal(t, "flag:9002", cfg.Address)
	assert.Equal(t, "configarg-mode", cfg.Mode)
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	var cfg *testConfig
	assert.Error(t, ParseConfig(cfg))
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	assert.Error(t, ParseArgs(nil, []string{}))
}

func keepDefaultLogger(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestRunRejectsMissingInputs(t *testing.T) {
	noop := func(context.Context, *slog.Logger) error { return nil }
	assert.Error(t, Run(context.Background(), "", RunOptions{}, noop))
	assert.Error(t, Run(context.Background(), ServiceSite, RunOptions{}, nil))
}

func TestRunLogsLifecycleWithServiceName(t *testing.T) {
	keepDefaultLogger(t)
	t.Setenv("VITRINE_OTEL_ENDPOINT", "")
	var buf bytes.Buffer

	err := Run(context.Background(), ServiceSite, RunOptions{Log: logging.Options{Output: &buf}}, func(_ context.Context, logger *slog.Logger) error {
		logger.Info("serving")
		assert.Same(t, logger, slog.Default())
		return nil
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		assert.Equal(t, ServiceSite, record["service"])
	}
	assert.Contains(t, lines[0], `"msg":"starting"`)
	assert.Contains(t, lines[1], `"msg":"serving"`)
	assert.Contains(t, lines[2], `"msg":"stopped"`)
}

func TestRunReturnsRunError(t *testing.T) {
	keepDefaultLogger(t)
	t.Setenv("VITRINE_OTEL_ENDPOINT", "")
	var buf bytes.Buffer
	boom := errors.New("boom")

	err := Run(context.Background(), ServiceSite, RunOptions{Log: logging.Options{Output: &buf, Level: "error"}}, func(context.Context, *slog.Logger) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), `"msg":"stopped with error"`)
	assert.NotContains(t, buf.String(), `"msg":"starting"`)
}

func TestRunWithCancelledContext(t *testing.T) {
	keepDefaultLogger(t)
	t.Setenv("VITRINE_OTEL_ENDPOINT", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, ServiceSite, RunOptions{Log: logging.Options{Output: io.Discard}}, func(ctx context.Context, _ *slog.Logger) error {
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
