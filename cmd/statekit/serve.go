package main

import (
	"fmt"
	"os"

	"github.com/artpar/statekit/bootstrap"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the modules and the inspector API",
	Long: `Load every module, hydrate persisted state and keep running until
interrupted. Pending writes are flushed on shutdown.

The server will:
  - Load configuration from statekit.yaml (or --config)
  - Or load configuration from STATEKIT_* environment variables
  - Create the modules in the modules directory
  - Serve the inspector API when server.enabled is set

Environment variables:
  STATEKIT_MODULES_DIR          - Directory of module definitions
  STATEKIT_PERSIST_BACKEND      - none, memory, sqlite or file
  STATEKIT_PERSIST_DSN          - SQLite path or state directory
  STATEKIT_SERVER_ENABLED       - Start the inspector API
  STATEKIT_SERVER_PORT          - Inspector port (default: 8080)
  STATEKIT_LOG_LEVEL            - Log level: debug, info, warn, error

Examples:
  statekit serve
  statekit serve --config /etc/statekit/statekit.toml
  statekit serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload logging settings when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload && modulesDir == "" {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cmd.Context(), bootstrap.Options{
			ConfigPath: cfgFile,
			Version:    version,
		})
	} else {
		cfg, loadErr := loadConfig()
		if loadErr != nil {
			return loadErr
		}

		if !hasConfigFile {
			fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cmd.Context(), bootstrap.Options{
			Config:  cfg,
			Version: version,
		})
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run(cmd.Context())
}
