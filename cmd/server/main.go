// Package main provides the entry point for the cache monitor.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/cachewatch/cmd/server/config"
	"github.com/TFMV/cachewatch/cmd/server/server"
	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cachewatch",
	Short: "Monitor a LiquidCache server",
	Long: `cachewatch watches a LiquidCache server: its execution plans, cache
usage and host resources, and drives its control endpoints.

Run "cachewatch serve" for the web dashboard, or use the subcommands for
one-shot terminal output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitoring dashboard",
	Long: `Start the monitoring dashboard with the specified configuration.

Example:
  cachewatch serve --config ./cachewatch.yaml
  cachewatch serve --address 0.0.0.0:8080 --server http://localhost:53703`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags shared by every command
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file path")
	pf.StringP("server", "s", config.DefaultServerAddress, "cache server address")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Duration("request-timeout", 10*time.Second, "timeout for each request to the cache server")
	pf.Bool("no-color", false, "disable colored output")

	// Dashboard flags
	f := serveCmd.Flags()
	f.String("address", "0.0.0.0:8080", "dashboard listen address")
	f.Bool("no-metrics", false, "disable the Prometheus metrics server")
	f.String("metrics-address", ":9090", "metrics server address")
	f.Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	f.String("trace-path", "/tmp", "default server-side directory for trace dumps")
	f.String("stats-path", "/tmp", "default server-side directory for cache stats dumps")
	f.StringSlice("cors-origins", nil, "origins allowed to call the JSON API")
	f.Bool("archive-enabled", false, "archive every decoded execution plan")
	f.String("archive-driver", "duckdb", "archive database driver (duckdb, sqlite)")
	f.String("archive-dsn", "cachewatch.duckdb", "archive database path")
	f.Bool("flight-enabled", false, "probe the server's Arrow Flight endpoint")
	f.String("flight-address", "localhost:15214", "Arrow Flight endpoint address")

	// Bind flags to viper
	if err := viper.BindPFlags(pf); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	if err := viper.BindPFlags(f); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("CACHEWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	addClientCommands(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cachewatch\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !stderrors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.LogLevel, false)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Msg("Starting cachewatch dashboard")

	// Create metrics collector
	var collector metrics.Collector
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector()
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address, cfg.Metrics.Path, prometheus.DefaultGatherer)
	} else {
		collector = metrics.NewNoOpCollector()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc, err := server.NewService(ctx, cfg, logger, collector)
	if err != nil {
		return fmt.Errorf("failed to create dashboard service: %w", err)
	}
	srv := server.New(cfg, svc, logger, collector, metricsServer)

	// Setup graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown did not complete cleanly")
		return err
	}

	logger.Info().Msg("Dashboard stopped")
	return nil
}

// setupLogging builds the process logger. Unknown levels fall back to info.
// The dashboard logs JSON; one-shot commands log human readable lines.
func setupLogging(level string, console bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly, NoColor: color.NoColor}
	}

	ctx := zerolog.New(out).Level(lvl).With().Timestamp()
	if console {
		return ctx.Logger()
	}
	ctx = ctx.Str("service", "cachewatch")
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}
