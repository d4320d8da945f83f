// -----------------------------------------------------------------------
// Last Modified: Thursday, 14th November 2025 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/foundryhq/jobengine/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("jobengine version %s\n", common.GetVersion())
		os.Exit(0)
	}

	common.InstallCrashHandler(common.DefaultLogsDir())
	defer common.RecoverWithCrashFile()

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Initialize logger
	// 3. Build composition root
	// 4. Start scheduler loops
	// 5. Block for shutdown signal, stop loops, close storage

	if len(configFiles) == 0 {
		if _, err := os.Stat("jobengine.toml"); err == nil {
			configFiles = append(configFiles, "jobengine.toml")
		} else if _, err := os.Stat("deployments/local/jobengine.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/jobengine.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := common.GetLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	logger := common.SetupLogger(config)

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Msg("jobengine configuration loaded")

	app, err := newApplication(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	app.StreamAggregator.StartPeriodicFlush(ctx)

	logger.Info().Msg("jobengine ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.ShutdownGrace)
	defer shutdownCancel()

	if err := app.Scheduler.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Scheduler shutdown failed")
	}

	logger.Info().Msg("jobengine stopped")
}
