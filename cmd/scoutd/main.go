// Package main is scoutd's entry point and command registration hub,
// following the teacher's cmd/nerd/main.go shape: a cobra root command
// with PersistentPreRunE building both an operator-facing zap logger and
// the durable internal/logging category files, PersistentPostRun
// flushing both, and each verb in its own cmd_*.go file.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, init()
//   - cmd_run.go     - run <portal>, resume <portal>
//   - cmd_portals.go - list-portals
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tenderwatch/scoutd/internal/config"
	"github.com/tenderwatch/scoutd/internal/logging"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scoutd",
	Short: "scoutd scrapes and persists tender listings from government e-procurement portals",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		workspace, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
		if err := logging.Initialize(workspace, cfg.Logging.Level, cfg.Logging.Format == "json"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to scoutd.yaml (defaults applied when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd, resumeCmd, listPortalsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
