package schema

// Module is the root definition of a declarative module.
type Module struct {
	// Namespace identifies the module (e.g., "user", "cart").
	Namespace string `yaml:"namespace" toml:"namespace"`

	// Persist controls persistence. Nil means true.
	Persist *bool `yaml:"persist,omitempty" toml:"persist,omitempty"`

	// State is the initial state.
	State map[string]any `yaml:"state" toml:"state"`

	// Actions maps action names to their operations.
	Actions map[string]Action `yaml:"actions,omitempty" toml:"actions,omitempty"`

	// Meta contains optional metadata.
	Meta ModuleMeta `yaml:"meta,omitempty" toml:"meta,omitempty"`

	// Source is the file the module was parsed from, if any.
	Source string `yaml:"-" toml:"-"`
}

// ModuleMeta contains optional module metadata.
type ModuleMeta struct {
	// Version of the module definition.
	Version string `yaml:"version,omitempty" toml:"version,omitempty"`

	// Description for documentation.
	Description string `yaml:"description,omitempty" toml:"description,omitempty"`
}

// IsPersistent reports whether the module is persisted.
func (m Module) IsPersistent() bool {
	return m.Persist == nil || *m.Persist
}
