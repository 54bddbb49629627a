package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a definition file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	default:
		return "", false
	}
}

// ParseFile parses a module definition from a YAML or TOML file.
func ParseFile(path string) (Module, error) {
	format, ok := FormatOf(path)
	if !ok {
		return Module{}, fmt.Errorf("parse %s: unsupported file extension", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Module{}, fmt.Errorf("read file %s: %w", path, err)
	}

	mod, err := ParseFormat(data, format)
	if err != nil {
		return Module{}, fmt.Errorf("%s: %w", path, err)
	}
	mod.Source = path
	return mod, nil
}

// Parse parses a module definition from YAML bytes.
func Parse(data []byte) (Module, error) {
	return ParseFormat(data, FormatYAML)
}

// ParseFormat parses and validates a module definition.
func ParseFormat(data []byte, format Format) (Module, error) {
	var mod Module
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &mod); err != nil {
			return Module{}, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &mod); err != nil {
			return Module{}, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return Module{}, fmt.Errorf("unknown format %q", format)
	}

	if err := Validate(mod); err != nil {
		return Module{}, fmt.Errorf("validate module %q: %w", mod.Namespace, err)
	}

	return mod, nil
}

// ParseDir parses all module definitions from a directory, including
// subdirectories. Modules are returned sorted by namespace; two files
// declaring the same namespace are an error.
func ParseDir(dir string) ([]Module, error) {
	modules, err := parseDir(dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Namespace < modules[j].Namespace
	})
	for i := 1; i < len(modules); i++ {
		if modules[i].Namespace == modules[i-1].Namespace {
			return nil, fmt.Errorf("namespace %q declared in both %s and %s",
				modules[i].Namespace, modules[i-1].Source, modules[i].Source)
		}
	}

	return modules, nil
}

func parseDir(dir string) ([]Module, error) {
	var modules []Module

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			subModules, err := parseDir(path)
			if err != nil {
				return nil, err
			}
			modules = append(modules, subModules...)
			continue
		}

		if _, ok := FormatOf(path); !ok {
			continue
		}

		mod, err := ParseFile(path)
		if err != nil {
			return nil, err
		}

		modules = append(modules, mod)
	}

	return modules, nil
}

// Validate validates a module definition.
func Validate(mod Module) error {
	var errs []string

	if mod.Namespace == "" {
		errs = append(errs, "namespace is required")
	} else if !isValidIdentifier(mod.Namespace) {
		errs = append(errs, fmt.Sprintf("namespace %q is not a valid identifier", mod.Namespace))
	}

	for name, action := range mod.Actions {
		if !isValidIdentifier(name) {
			errs = append(errs, fmt.Sprintf("action name %q is not a valid identifier", name))
		}

		if err := validateAction(name, action, mod); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if cycle := findDispatchCycle(mod.Actions); cycle != nil {
		errs = append(errs, fmt.Sprintf("dispatch cycle: %s", strings.Join(cycle, " -> ")))
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateAction validates a single action definition.
func validateAction(name string, action Action, mod Module) error {
	if action.isEmpty() {
		return fmt.Errorf("action %q: has no operations", name)
	}

	for _, key := range action.Reset {
		if key == ResetAll {
			continue
		}
		if _, ok := mod.State[key]; !ok {
			return fmt.Errorf("action %q: reset key %q not in state", name, key)
		}
	}

	seen := make(map[string]bool, len(action.Set))
	for _, key := range action.Set {
		if key == "" {
			return fmt.Errorf("action %q: set key is empty", name)
		}
		if seen[key] {
			return fmt.Errorf("action %q: set key %q listed twice", name, key)
		}
		seen[key] = true
	}

	for _, target := range action.Dispatch {
		if _, ok := mod.Actions[target]; !ok {
			return fmt.Errorf("action %q: dispatch target %q is not an action", name, target)
		}
		if mod.Actions[target].Arity() > 0 {
			return fmt.Errorf("action %q: dispatch target %q requires arguments", name, target)
		}
	}

	return nil
}

// findDispatchCycle returns one dispatch cycle, or nil.
func findDispatchCycle(actions map[string]Action) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(actions))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		switch marks[name] {
		case visiting:
			for i, n := range path {
				if n == name {
					return append(append([]string{}, path[i:]...), name)
				}
			}
		case done:
			return nil
		}

		marks[name] = visiting
		path = append(path, name)
		for _, next := range actions[name].Dispatch {
			if _, ok := actions[next]; !ok {
				continue
			}
			if cycle := visit(next); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		marks[name] = done
		return nil
	}

	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if marks[name] == unvisited {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' && c != '-' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
