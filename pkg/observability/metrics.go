package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Plan enforcement metrics
	PlanDecisionsTotal *prometheus.CounterVec

	// Billing metrics
	InvoicesGeneratedTotal *prometheus.CounterVec
	InvoicedCentsTotal     *prometheus.CounterVec
	CycleRunDuration       prometheus.Histogram

	// Document metrics
	DocumentsRenderedTotal *prometheus.CounterVec
	DocumentRenderDuration prometheus.Histogram

	// AI drafting metrics
	AIDraftsTotal   *prometheus.CounterVec
	AIDraftDuration prometheus.Histogram
	AIDraftTokens   *prometheus.CounterVec

	// Webhook metrics
	WebhookDeliveriesTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	otel *OTelMetrics
}

// AttachOTel mirrors every recorded measurement to OpenTelemetry instruments
func (m *Metrics) AttachOTel(o *OTelMetrics) {
	if m != nil {
		m.otel = o
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "closingroom_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "closingroom_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "closingroom_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		PlanDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_plan_decisions_total",
				Help: "Plan limit checks by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),

		InvoicesGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_invoices_generated_total",
				Help: "Total number of invoices generated at cycle close",
			},
			[]string{"status"},
		),
		InvoicedCentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_invoiced_cents_total",
				Help: "Sum of invoice totals in cents",
			},
			[]string{"currency"},
		),
		CycleRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "closingroom_billing_cycle_run_duration_seconds",
				Help:    "Duration of a billing cycle run",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
			},
		),

		DocumentsRenderedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_documents_rendered_total",
				Help: "Total number of rendered contract documents",
			},
			[]string{"status"},
		),
		DocumentRenderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "closingroom_document_render_duration_seconds",
				Help:    "Document render duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		AIDraftsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_ai_drafts_total",
				Help: "Total number of AI clause drafts",
			},
			[]string{"kind", "status"},
		),
		AIDraftDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "closingroom_ai_draft_duration_seconds",
				Help:    "AI completion latency in seconds",
				Buckets: []float64{.25, .5, 1, 2, 5, 10, 30, 60},
			},
		),
		AIDraftTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_ai_draft_tokens_total",
				Help: "Tokens consumed by AI drafts",
			},
			[]string{"type"},
		),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts",
			},
			[]string{"event", "status"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closingroom_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "closingroom_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "closingroom_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "closingroom_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.PlanDecisionsTotal,
		m.InvoicesGeneratedTotal,
		m.InvoicedCentsTotal,
		m.CycleRunDuration,
		m.DocumentsRenderedTotal,
		m.DocumentRenderDuration,
		m.AIDraftsTotal,
		m.AIDraftDuration,
		m.AIDraftTokens,
		m.WebhookDeliveriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
	)

	return m
}

// The Record helpers are safe to call on a nil *Metrics so that components can run
// without a registry in tests and tools.

// RecordPlanDecision counts a plan check. outcome is allowed, overage or denied.
func (m *Metrics) RecordPlanDecision(resource, outcome string) {
	if m == nil {
		return
	}
	m.PlanDecisionsTotal.WithLabelValues(resource, outcome).Inc()
	if m.otel != nil {
		m.otel.RecordPlanDecision(context.Background(), resource, outcome)
	}
}

// RecordInvoice counts a generated invoice
func (m *Metrics) RecordInvoice(status, currency string, totalCents int64) {
	if m == nil {
		return
	}
	m.InvoicesGeneratedTotal.WithLabelValues(status).Inc()
	m.InvoicedCentsTotal.WithLabelValues(currency).Add(float64(totalCents))
	if m.otel != nil {
		m.otel.RecordInvoice(context.Background(), status, currency, totalCents)
	}
}

// RecordCycleRun observes the duration of one billing cycler pass
func (m *Metrics) RecordCycleRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.CycleRunDuration.Observe(duration.Seconds())
}

// RecordDocumentRender counts a rendered document
func (m *Metrics) RecordDocumentRender(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.DocumentsRenderedTotal.WithLabelValues(statusLabel(err)).Inc()
	m.DocumentRenderDuration.Observe(duration.Seconds())
	if m.otel != nil {
		m.otel.RecordDocumentRender(context.Background(), duration, err)
	}
}

// RecordAIDraft counts an AI completion and its token usage
func (m *Metrics) RecordAIDraft(kind string, duration time.Duration, promptTokens, completionTokens int, err error) {
	if m == nil {
		return
	}
	m.AIDraftsTotal.WithLabelValues(kind, statusLabel(err)).Inc()
	m.AIDraftDuration.Observe(duration.Seconds())
	m.AIDraftTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	m.AIDraftTokens.WithLabelValues("completion").Add(float64(completionTokens))
	if m.otel != nil {
		m.otel.RecordAIDraft(context.Background(), kind, duration, promptTokens, completionTokens, err)
	}
}

// RecordWebhookDelivery counts a webhook delivery attempt
func (m *Metrics) RecordWebhookDelivery(event, status string) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(event, status).Inc()
	if m.otel != nil {
		m.otel.RecordWebhookDelivery(context.Background(), event, status)
	}
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
	if m.otel != nil {
		m.otel.RecordCacheLookup(context.Background(), cacheType, hit)
	}
}

// UpdateDBStats copies connection pool statistics into the database gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeTemplate returns the matched mux route template so path labels stay bounded
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeTemplate(r)
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
			if metrics.otel != nil {
				metrics.otel.RecordHTTPRequest(r.Context(), r.Method, path, rw.statusCode, time.Since(start))
			}
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
