// Package cmd holds the startup plumbing shared by service commands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/louisbranch/vitrine/internal/platform/config"
	"github.com/louisbranch/vitrine/internal/platform/logging"
	"github.com/louisbranch/vitrine/internal/platform/otel"
	"github.com/louisbranch/vitrine/internal/platform/timeouts"
)

// ServiceSite identifies the public site process in telemetry.
const ServiceSite = "site"

// RunOptions controls how a service process starts and stops.
type RunOptions struct {
	// Log shapes the process logger, which also becomes slog's default.
	Log logging.Options
	// ShutdownTimeout bounds telemetry flushing. Defaults to
	// timeouts.Shutdown.
	ShutdownTimeout time.Duration
}

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// ParseConfigFromArgs loads defaults from env and then lets register bind
// flags against the loaded values before parsing args.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string, register func(*flag.FlagSet, *T)) error {
	if err := ParseConfig(cfg); err != nil {
		return err
	}
	if register != nil && fs != nil {
		register(fs, cfg)
	}
	return ParseArgs(fs, args)
}

// Run builds the process logger, starts telemetry and executes run with
// both. Telemetry is flushed after run returns, even when ctx is already
// cancelled.
func Run(ctx context.Context, service string, options RunOptions, run func(context.Context, *slog.Logger) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(options.Log).With("service", service)
	slog.SetDefault(logger)

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		timeout := options.ShutdownTimeout
		if timeout <= 0 {
			timeout = timeouts.Shutdown
		}
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err.Error())
		}
	}()

	logger.Info("starting", "pid", os.Getpid())
	err = run(ctx, logger)
	if err != nil {
		logger.Error("stopped with error", "error", err.Error())
		return err
	}
	logger.Info("stopped")
	return nil
}
