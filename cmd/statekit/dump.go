package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/artpar/statekit/core/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dumpFormat string
	dumpStored bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump [namespace...]",
	Short: "Print module state",
	Long: `Print the hydrated state of every module, or of the named ones.

With --stored the raw persisted snapshot is printed instead, including
namespaces no module declares.

Examples:
  statekit dump
  statekit dump user --format yaml
  statekit dump --stored`,
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "json", "output format: json or yaml")
	dumpCmd.Flags().BoolVar(&dumpStored, "stored", false, "print the persisted snapshot instead of live state")
}

func runDump(cmd *cobra.Command, args []string) error {
	if dumpFormat != "json" && dumpFormat != "yaml" {
		return fmt.Errorf("unknown format %q", dumpFormat)
	}

	app, err := openOffline(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	states := map[string]state.State{}
	if dumpStored {
		if app.Persist == nil {
			return fmt.Errorf("persistence is disabled")
		}
		if states, err = app.Persist.Load(cmd.Context()); err != nil {
			return err
		}
	} else {
		for _, m := range app.Store.Modules() {
			states[m.Namespace()] = m.State()
		}
	}

	if len(args) > 0 {
		picked := make(map[string]state.State, len(args))
		for _, ns := range args {
			s, ok := states[ns]
			if !ok {
				return fmt.Errorf("module %s not found", ns)
			}
			picked[ns] = s
		}
		states = picked
	}

	return writeOutput(cmd.OutOrStdout(), dumpFormat, states)
}

func writeOutput(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
