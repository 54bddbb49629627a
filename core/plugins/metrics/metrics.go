// Package metrics provides a Prometheus metrics plugin for the store.
package metrics

import (
	"context"
	"net/http"

	"github.com/artpar/statekit/core/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the metrics plugin.
type Config struct {
	// Namespace prefixes every metric name (default "statekit").
	Namespace string

	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// Plugin records store activity into its own registry.
type Plugin struct {
	registry *prometheus.Registry

	// Module metrics
	Modules     prometheus.Gauge
	Transitions *prometheus.CounterVec
	ChangedKeys prometheus.Histogram

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a metrics plugin with all metrics registered.
func New(cfg Config) *Plugin {
	if cfg.Namespace == "" {
		cfg.Namespace = "statekit"
	}

	reg := prometheus.NewRegistry()
	if cfg.RuntimeCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Plugin{
		registry: reg,

		Modules: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "modules",
				Help:      "Number of modules created",
			},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "transitions_total",
				Help:      "Total number of state transitions",
			},
			[]string{"namespace", "action"},
		),
		ChangedKeys: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "transition_changed_keys",
				Help:      "Top-level keys whose value changed in a transition",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of configuration reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "config_last_reload_timestamp_seconds",
				Help:      "Timestamp of the last successful configuration reload",
			},
		),
	}
}

// Name implements store.Plugin.
func (p *Plugin) Name() string {
	return "metrics"
}

// ModuleCreated counts the module.
func (p *Plugin) ModuleCreated(_ context.Context, _ store.Snapshot) {
	p.Modules.Inc()
}

// SetStore records the transition.
func (p *Plugin) SetStore(_ context.Context, t store.Transition) {
	p.Transitions.WithLabelValues(t.Namespace, t.Action).Inc()
	p.ChangedKeys.Observe(float64(len(t.LastState.Changed(t.NextState))))
}

// RecordReload records a configuration reload attempt.
func (p *Plugin) RecordReload(err error) {
	if err != nil {
		p.ConfigReloadErrors.Inc()
		return
	}
	p.ConfigReloads.Inc()
	p.ConfigLastReload.SetToCurrentTime()
}

// Registry returns the plugin's registry.
func (p *Plugin) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Plugin) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

var (
	_ store.Creator     = (*Plugin)(nil)
	_ store.Observer    = (*Plugin)(nil)
)
