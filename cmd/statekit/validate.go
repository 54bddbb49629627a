package main

import (
	"fmt"

	"github.com/artpar/statekit/bootstrap"
	"github.com/artpar/statekit/core/schema"
	"github.com/spf13/cobra"
)

var validateFormat string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and module definitions",
	Long: `Validate the statekit configuration and every module definition.

Checks:
  - Config syntax and values are valid
  - Module files parse and pass validation
  - No namespace is declared twice

Examples:
  statekit validate
  statekit validate --modules ./modules --format yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "", "print module summaries: json or yaml")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Config valid (mode %s, persist %s)\n", checkMark, cfg.Mode, cfg.Persist.Backend)

	mods, err := bootstrap.LoadModuleDir(cfg.ModulesDir)
	if err != nil {
		fmt.Fprintf(out, "  %s Modules valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Modules valid (%d in %q)\n", checkMark, len(mods), cfg.ModulesDir)

	summaries := make([]schema.ModuleSchema, 0, len(mods))
	for _, m := range mods {
		summaries = append(summaries, schema.Describe(m))
	}

	switch validateFormat {
	case "":
		for _, s := range summaries {
			fmt.Fprintf(out, "      %s: %d keys, %d actions\n", s.Namespace, len(s.Keys), len(s.Actions))
		}
		return nil
	case "json", "yaml":
		return writeOutput(out, validateFormat, summaries)
	default:
		return fmt.Errorf("unknown format %q", validateFormat)
	}
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
