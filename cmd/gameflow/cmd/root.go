// Package cmd provides the CLI commands for the gameflow engine.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/playforge/gameflow/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gameflow",
	Short: "Gameflow - rule and workflow engine for games platforms",
	Long: `Gameflow is the rule and workflow engine core of a games platform.

It evaluates conditional business rules against player contexts and drives
multi-step processes (onboarding, game sessions, purchases) through
finite-state-machine workflows gated by those rules.

Quick start:
  1. Write a definition file with rules and workflows (YAML)
  2. Validate it: gameflow validate defs.yaml
  3. Run it:      gameflow run --defs defs.yaml

Configuration:
  Config is loaded from gameflow.yaml in the current directory,
  $HOME/.gameflow/, or /etc/gameflow/.

  Environment variables can override config values with the GAMEFLOW_
  prefix. Example: GAMEFLOW_ENGINE_EVAL_INTERVAL_MS=500

Commands:
  run         Load definitions and run continuous evaluation or a workflow
  validate    Parse and validate definition files
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gameflow.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// newLogger builds the slog logger from the log config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
