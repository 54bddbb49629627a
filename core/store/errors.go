package store

import "errors"

var (
	// ErrDuplicateNamespace is returned when a module with the same namespace
	// already exists in the store.
	ErrDuplicateNamespace = errors.New("namespace already registered")

	// ErrInvalidDeclaration is returned for malformed module declarations.
	ErrInvalidDeclaration = errors.New("invalid module declaration")

	// ErrUnknownAction is returned when dispatching an action the module does not declare.
	ErrUnknownAction = errors.New("unknown action")

	// ErrPluginInit wraps a failure raised by a plugin's InitStore hook.
	ErrPluginInit = errors.New("plugin init failed")
)
