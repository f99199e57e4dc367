package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	// Touch a few vectors so they show up in the gather
	m.SessionResolutionsTotal.WithLabelValues("cookie", "ok").Inc()
	m.GateDenialsTotal.WithLabelValues("unauthenticated").Inc()
	m.WebhookDeliveriesTotal.WithLabelValues("workspace.updated", "delivered").Inc()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"atrium_session_resolutions_total":  false,
		"atrium_gate_denials_total":         false,
		"atrium_webhook_deliveries_total":   false,
		"atrium_sessions_active":            false,
		"atrium_workspaces_total":           false,
	}
	for _, fam := range families {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
		}
		if !strings.HasPrefix(fam.GetName(), "atrium_") {
			t.Errorf("metric %s missing atrium_ prefix", fam.GetName())
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))

	req := httptest.NewRequest("DELETE", "/api/v1/api-keys/9", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("DELETE", "/api/v1/api-keys/9", "404"))
	if count != 1 {
		t.Errorf("expected one counted request, got %v", count)
	}
}

func TestGateDenialCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.GateDenialsTotal.WithLabelValues("forbidden").Inc()
	m.GateDenialsTotal.WithLabelValues("forbidden").Inc()

	if got := testutil.ToFloat64(m.GateDenialsTotal.WithLabelValues("forbidden")); got != 2 {
		t.Errorf("forbidden denials = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.GateDenialsTotal.WithLabelValues("unauthenticated")); got != 0 {
		t.Errorf("unauthenticated denials = %v, want 0", got)
	}
}
