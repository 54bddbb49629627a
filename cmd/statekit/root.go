package main

import (
	"fmt"
	"os"

	"github.com/artpar/statekit/bootstrap"
	"github.com/artpar/statekit/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile    string
	modulesDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "statekit",
	Short: "Reactive state modules with persistence",
	Long: `statekit hosts namespaced state modules declared in YAML or TOML.

Modules hold state and actions. Persisted modules are hydrated from storage
at startup and written back, debounced, after every change.

Quick start:
  statekit validate                 # Check config and module definitions
  statekit serve                    # Run with the inspector API
  statekit dispatch user SET_TOKEN '"abc"'
  statekit dump --format yaml       # Print module state`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "statekit.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&modulesDir, "modules", "", "modules directory (overrides config)")
}

// loadConfig loads the config file, or the environment when the file is
// missing, and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if modulesDir != "" {
		cfg.ModulesDir = modulesDir
	}
	return cfg, nil
}

// openOffline builds the application for one-shot commands: no inspector
// server, and logs on stderr so stdout carries only command output.
func openOffline(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Server.Enabled = false

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	return bootstrap.New(cmd.Context(), bootstrap.Options{
		Config:  cfg,
		Version: version,
		Logger:  &logger,
	})
}
