package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igharvest/pkg/config"
	"igharvest/pkg/logger"
	"igharvest/pkg/store"
	"igharvest/pkg/ui"
)

var (
	// Version information, set with -ldflags at build time
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	dbDriver   string
	dbDSN      string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igharvest",
	Short: "Incremental account and content harvester",
	Long: `igharvest resolves queued accounts against the upstream, seeds their
profile and content into a relational store, and keeps a durable job queue
so interrupted work resumes from the last committed phase.

Configuration is read from (highest priority first):
  - Command line flags
  - IGHARVEST_* environment variables (and .env files)
  - Configuration file (--config, .igharvest.yaml or ~/.config/igharvest/config.yaml)
  - Default values`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetQuietMode(quiet)
		logger.Version = version
	},
}

// Execute adds all child commands to the root command and runs it
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default searches .igharvest.yaml and ~/.config/igharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db-dsn", "", "database DSN or SQLite file path")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`igharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the global flags and extra command flags over the
// file, environment and defaults
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := map[string]interface{}{
		"db-driver": dbDriver,
		"db-dsn":    dbDSN,
		"log-level": logLevel,
	}
	for k, v := range extra {
		flags[k] = v
	}
	return config.Load(configFile, flags)
}

// setup loads the config and initializes the global logger
func setup(extra map[string]interface{}) (*config.Config, logger.Logger, error) {
	cfg, err := loadConfig(extra)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetLogger(), nil
}

// openStore connects to the configured database and brings the schema up
// to date
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*store.Store, error) {
	st, err := store.Open(store.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
