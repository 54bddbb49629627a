// Package logger provides a plugin that logs every module transition.
// It is meant for development; wire it with store.When(!production, ...).
package logger

import (
	"context"

	"github.com/artpar/statekit/core/store"
	"github.com/rs/zerolog"
)

// Plugin logs transitions.
type Plugin struct {
	logger zerolog.Logger
}

// New creates a logging plugin.
func New(l zerolog.Logger) *Plugin {
	return &Plugin{logger: l}
}

// Name implements store.Plugin.
func (p *Plugin) Name() string {
	return "logger"
}

// SetStore logs the transition with the previous and next state.
func (p *Plugin) SetStore(_ context.Context, t store.Transition) {
	p.logger.Info().
		Str("module", t.Namespace).
		Str("action", t.Action).
		Interface("prev", t.LastState).
		Interface("next", t.NextState).
		Msg("module update")
}

var _ store.Observer = (*Plugin)(nil)
