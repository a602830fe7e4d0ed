package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/25x8/playvested/internal/config"
	"github.com/25x8/playvested/internal/service"
	"github.com/25x8/playvested/internal/session"
)

const programName = "pvctl"

type globalOptions struct {
	debug       bool
	configFile  string
	baseURL     string
	publisherID string
	appID       string
	playerID    string
	metricsFile string
}

func commonRun(opts *globalOptions) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			AddSource: opts.debug,
			Level:     logLevel,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

// runSession builds a controller for the configured identity, initialises it
// and hands it to fn. The controller is closed before returning.
func runSession(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, c *session.Controller) error) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return fmt.Errorf("no config found in context")
	}
	logger := commonRun(opts)

	registry := prometheus.NewRegistry()
	ledger := service.NewLedgerService(cfg.LedgerURL(),
		service.WithPollInterval(cfg.PollInterval),
		service.WithLogger(logger),
		service.WithMetrics(service.NewMetrics(registry)),
	)
	c := session.New(ledger,
		session.WithDisplay(newConsoleDisplay(cmd.OutOrStdout(), opts.debug)),
		session.WithLogger(logger),
		session.WithLinkCloseDelay(cfg.LinkCloseDelay),
		session.WithRequestTimeout(cfg.RequestTimeout),
	)
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// wait for the link check so its result does not interleave with fn
	if _, err := c.Init(opts.publisherID, opts.appID, opts.playerID).Wait(ctx); err != nil {
		logger.Warn("link status unavailable", "component", programName, "error", err)
	}

	err := fn(ctx, c)

	if opts.metricsFile != "" {
		if werr := prometheus.WriteToTextfile(opts.metricsFile, registry); werr != nil {
			logger.Error("failed to write metrics", "component", programName, "error", werr)
		}
	}
	return err
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Talk to a PlayVested ledger as a game session would",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&opts.configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().
		StringVar(&opts.baseURL, "base-url", "", "ledger base URL, overrides the environment default")
	rootCmd.PersistentFlags().
		StringVar(&opts.publisherID, "publisher", "", "publisher (developer) ID")
	rootCmd.PersistentFlags().
		StringVar(&opts.appID, "app", "", "application (game) ID")
	rootCmd.PersistentFlags().
		StringVar(&opts.playerID, "player", "", "player ID, empty for a new player")
	rootCmd.PersistentFlags().
		StringVar(&opts.metricsFile, "metrics-file", "", "write request metrics to this file on exit")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(opts.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if opts.baseURL != "" {
			cfg.BaseURL = opts.baseURL
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(
		linkedCommand(opts),
		createCommand(opts),
		reportCommand(opts),
		summaryCommand(opts),
		linkCommand(opts),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
