package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

func TestNewMetricsServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	metrics.RecordInvoice("open", "usd", 2900)
	metrics.RecordCycleRun(1500 * time.Millisecond)

	srv := newMetricsServer(":0", registry)
	assert.Equal(t, ":0", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `closingroom_invoices_generated_total{status="open"} 1`)
	assert.Contains(t, body, `closingroom_invoiced_cents_total{currency="usd"} 2900`)
	assert.Contains(t, body, "closingroom_billing_cycle_run_duration_seconds_count 1")
}

func TestGetEnv(t *testing.T) {
	t.Setenv("CLOSINGROOM_CYCLER_METRICS_ADDR", ":9999")
	assert.Equal(t, ":9999", getEnv("CLOSINGROOM_CYCLER_METRICS_ADDR", ":9091"))
	assert.Equal(t, "@hourly", getEnv("CLOSINGROOM_UNSET_FOR_TEST", "@hourly"))
}
