package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <namespace> <action> [args...]",
	Short: "Run one action against a module and persist the result",
	Long: `Hydrate the modules, run an action and flush the new state to storage.

Each argument is parsed as JSON; anything that is not valid JSON is passed
as a plain string.

Examples:
  statekit dispatch user SET_TOKEN abc
  statekit dispatch user SET_USER '{"name":"ann"}'
  statekit dispatch user logout`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	app, err := openOffline(cmd)
	if err != nil {
		return err
	}

	namespace, action := args[0], args[1]
	m, ok := app.Store.Module(namespace)
	if !ok {
		app.Shutdown()
		return fmt.Errorf("module %s not found", namespace)
	}

	result, err := m.Dispatch(cmd.Context(), action, parseArgs(args[2:])...)
	if err != nil {
		app.Shutdown()
		return fmt.Errorf("%s.%s: %w", namespace, action, err)
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("flush state: %w", err)
	}

	return writeOutput(cmd.OutOrStdout(), "json", map[string]any{
		"result": result,
		"state":  m.State(),
	})
}

func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			v = s
		}
		out[i] = v
	}
	return out
}
