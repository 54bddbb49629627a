// Package http provides the inspector API: read-only views of live modules
// plus action dispatch, for debugging and tooling.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "github.com/artpar/statekit/adapters/http/docs" // swagger docs
	"github.com/artpar/statekit/adapters/metrics"
	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/core/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// maxBodyBytes bounds dispatch request bodies.
const maxBodyBytes = 1 << 20

// ModuleSource looks up live modules. *store.Store implements it.
type ModuleSource interface {
	Module(namespace string) (*store.Module, bool)
	Modules() []*store.Module
}

// EventSource returns recent module events. *events.Recorder implements it.
type EventSource interface {
	Recent(limit int) []events.Event
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ModuleSummary describes a live module.
type ModuleSummary struct {
	Namespace   string   `json:"namespace"`
	Persist     bool     `json:"persist"`
	Actions     []string `json:"actions"`
	Subscribers int      `json:"subscribers"`
}

// ModuleDetail is a module summary with its current state.
type ModuleDetail struct {
	ModuleSummary
	State map[string]any `json:"state"`
}

// StateResponse is the value at a state path.
type StateResponse struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// DispatchRequest is the body of an action dispatch.
type DispatchRequest struct {
	Args []any `json:"args"`
}

// DispatchResponse is the result of an action dispatch.
type DispatchResponse struct {
	Result any            `json:"result"`
	State  map[string]any `json:"state"`
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	MetricsHandler http.Handler // Served at MetricsPath when set
	MetricsPath    string       // default "/metrics"
	Version        string       // Reported by /version (default "dev")
	Timeout        time.Duration
	EnableDocs     bool // Serve Swagger UI at /swagger/

	// Metrics records request metrics when set.
	Metrics *metrics.Collector

	// Events is served at /events when set.
	Events EventSource
}

// Handler serves the inspector endpoints.
type Handler struct {
	modules ModuleSource
	logger  zerolog.Logger
}

// NewHandler creates an inspector handler.
func NewHandler(modules ModuleSource, logger zerolog.Logger) *Handler {
	return &Handler{modules: modules, logger: logger}
}

// NewRouter creates the inspector router.
func NewRouter(modules ModuleSource, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	h := NewHandler(modules, logger)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, cfg.MetricsPath))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	r.Get("/health", Liveness)
	r.Get("/healthz", Liveness)

	if cfg.MetricsHandler != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsHandler)
	}

	if cfg.EnableDocs {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Get("/version", Version(cfg.Version))

	if cfg.Events != nil {
		r.Get("/events", RecentEvents(cfg.Events))
	}

	r.Route("/modules", func(r chi.Router) {
		r.Get("/", h.ListModules)
		r.Get("/{namespace}", h.GetModule)
		r.Get("/{namespace}/state", h.GetState)
		r.Post("/{namespace}/actions/{action}", h.Dispatch)
	})

	return r
}

// Liveness returns a simple liveness check.
//
//	@Summary		Liveness check
//	@Description	Returns OK if the service is running
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	map[string]string	"status: ok"
//	@Router			/health [get]
func Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports the service version.
//
//	@Summary	Service version
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	VersionResponse
//	@Router		/version [get]
func Version(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "statekit"})
	}
}

// RecentEvents lists the most recent module events.
//
//	@Summary		Recent events
//	@Description	Returns the most recent module events, oldest first
//	@Tags			Events
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of events"
//	@Success		200		{array}		events.Event
//	@Failure		400		{object}	ErrorResponse	"Invalid limit"
//	@Router			/events [get]
func RecentEvents(src EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, src.Recent(limit))
	}
}

// ListModules returns every live module.
//
//	@Summary		List modules
//	@Description	Lists every live module with its actions and subscriber count
//	@Tags			Modules
//	@Produce		json
//	@Success		200	{array}	ModuleSummary
//	@Router			/modules [get]
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	mods := h.modules.Modules()
	out := make([]ModuleSummary, 0, len(mods))
	for _, m := range mods {
		out = append(out, summarize(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetModule returns a module with its current state.
//
//	@Summary		Get module
//	@Description	Returns a module summary together with its current state
//	@Tags			Modules
//	@Produce		json
//	@Param			namespace	path		string	true	"Module namespace"
//	@Success		200			{object}	ModuleDetail
//	@Failure		404			{object}	ErrorResponse	"Module not found"
//	@Router			/modules/{namespace} [get]
func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ModuleDetail{ModuleSummary: summarize(m), State: m.State()})
}

// GetState returns the state value at ?path=a.b.c, or the whole state.
//
//	@Summary		Read state
//	@Description	Returns the value at a dot-separated state path, or the whole state
//	@Tags			Modules
//	@Produce		json
//	@Param			namespace	path		string	true	"Module namespace"
//	@Param			path		query		string	false	"State path, e.g. userinfo.name"
//	@Success		200			{object}	StateResponse
//	@Failure		404			{object}	ErrorResponse	"Module or path not found"
//	@Router			/modules/{namespace}/state [get]
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusOK, StateResponse{Value: m.State()})
		return
	}

	value, found := m.State().Lookup(strings.Split(path, ".")...)
	if !found {
		writeError(w, http.StatusNotFound, "path "+path+" not found")
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Path: path, Value: value})
}

// Dispatch runs an action with the JSON body's args.
//
//	@Summary		Dispatch action
//	@Description	Runs an action with the body's arguments and returns its result and the new state
//	@Tags			Modules
//	@Accept			json
//	@Produce		json
//	@Param			namespace	path		string			true	"Module namespace"
//	@Param			action		path		string			true	"Action name"
//	@Param			request		body		DispatchRequest	false	"Positional action arguments"
//	@Success		200			{object}	DispatchResponse
//	@Failure		400			{object}	ErrorResponse	"Invalid body"
//	@Failure		404			{object}	ErrorResponse	"Module or action not found"
//	@Failure		422			{object}	ErrorResponse	"Action failed"
//	@Router			/modules/{namespace}/actions/{action} [post]
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	action := chi.URLParam(r, "action")

	var req DispatchRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
	}

	result, err := m.Dispatch(r.Context(), action, req.Args...)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, store.ErrUnknownAction) {
			status = http.StatusNotFound
		}
		h.logger.Debug().
			Err(err).
			Str("module", m.Namespace()).
			Str("action", action).
			Msg("dispatch failed")
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DispatchResponse{Result: result, State: m.State()})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*store.Module, bool) {
	ns := chi.URLParam(r, "namespace")
	m, ok := h.modules.Module(ns)
	if !ok {
		writeError(w, http.StatusNotFound, "module "+ns+" not found")
	}
	return m, ok
}

func summarize(m *store.Module) ModuleSummary {
	return ModuleSummary{
		Namespace:   m.Namespace(),
		Persist:     m.Persist(),
		Actions:     m.Actions(),
		Subscribers: m.Subscribers(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// NewLoggingMiddleware logs every request at debug level.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks, metrics and docs
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == metricsPath ||
				strings.HasPrefix(r.URL.Path, "/swagger") {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
