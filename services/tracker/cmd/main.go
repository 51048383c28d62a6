// Command tracker is the shipment tracker client: it caches shipments in an
// encrypted, versioned local store and records telemetry for every action.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/app"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/config"
	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/logging"
	"github.com/spf13/cobra"
)

// Global flags.
var (
	configFile  string
	logLevel    string
	logFormat   string
	traceStdout bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tracker",
		Short: "Shipment tracker client",
		Long: `tracker keeps an encrypted local copy of the shipments list, follows
live positions over a websocket and records telemetry for every state change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, text)")
	root.PersistentFlags().BoolVar(&traceStdout, "trace-stdout", false, "Print OpenTelemetry spans to stdout")

	root.AddCommand(newServeCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newTrackCmd())
	root.AddCommand(newStatsCmd())

	return root
}

// loadApp builds and starts the app from flags, file and environment.
// The caller must Close it.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if traceStdout {
		cfg.TraceStdout = true
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
