package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/statekit/adapters/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, "")

	if m.RequestsTotal == nil || m.RequestDuration == nil || m.RequestsInFlight == nil {
		t.Fatal("metrics not initialized")
	}

	m.RequestsTotal.WithLabelValues("GET", "/modules", "200").Inc()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "statekit_http_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("statekit_http_requests_total metric not found")
	}
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, "test")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/modules/{namespace}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "namespace") == "ghost" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("{}"))
	})

	for _, path := range []string{"/modules/user", "/modules/cart", "/modules/ghost", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	tests := []struct {
		route  string
		status string
		want   float64
	}{
		{"/modules/{namespace}", "200", 2},
		{"/modules/{namespace}", "404", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", tt.route, tt.status))
		if got != tt.want {
			t.Errorf("requests{%s,%s} = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(m.RequestsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(m.RequestDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}
