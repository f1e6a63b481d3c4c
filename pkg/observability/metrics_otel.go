package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments. Attached to a *Metrics with
// AttachOTel, it receives every domain measurement the Prometheus registry does.
type OTelMetrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Plan enforcement
	planDecisions metric.Int64Counter

	// Billing
	invoicesTotal metric.Int64Counter
	invoicedCents metric.Int64Counter

	// Documents
	documentRenders        metric.Int64Counter
	documentRenderDuration metric.Float64Histogram

	// AI drafting
	aiDrafts        metric.Int64Counter
	aiDraftDuration metric.Float64Histogram
	aiTokens        metric.Int64Counter

	// Webhooks
	webhookDeliveries metric.Int64Counter

	// Cache
	cacheLookups metric.Int64Counter
}

// NewOTelMetrics creates a new OTel metrics instance from the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/closingroom")

	m := &OTelMetrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.planDecisions, err = meter.Int64Counter(
		"closingroom.plan.decisions",
		metric.WithDescription("Plan limit checks by resource and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan decisions counter: %w", err)
	}

	m.invoicesTotal, err = meter.Int64Counter(
		"closingroom.invoices.generated",
		metric.WithDescription("Invoices generated by the billing cycle"),
		metric.WithUnit("{invoice}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoices counter: %w", err)
	}

	m.invoicedCents, err = meter.Int64Counter(
		"closingroom.invoices.amount",
		metric.WithDescription("Invoiced amount in minor currency units"),
		metric.WithUnit("{cent}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoiced amount counter: %w", err)
	}

	m.documentRenders, err = meter.Int64Counter(
		"closingroom.documents.rendered",
		metric.WithDescription("Contract documents rendered"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document renders counter: %w", err)
	}

	m.documentRenderDuration, err = meter.Float64Histogram(
		"closingroom.documents.render.duration",
		metric.WithDescription("Contract document render duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document render histogram: %w", err)
	}

	m.aiDrafts, err = meter.Int64Counter(
		"closingroom.ai.drafts",
		metric.WithDescription("AI drafting completions"),
		metric.WithUnit("{draft}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai drafts counter: %w", err)
	}

	m.aiDraftDuration, err = meter.Float64Histogram(
		"closingroom.ai.draft.duration",
		metric.WithDescription("AI drafting completion latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai draft histogram: %w", err)
	}

	m.aiTokens, err = meter.Int64Counter(
		"closingroom.ai.tokens",
		metric.WithDescription("AI tokens consumed by type"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai tokens counter: %w", err)
	}

	m.webhookDeliveries, err = meter.Int64Counter(
		"closingroom.webhooks.deliveries",
		metric.WithDescription("Webhook delivery attempts by event and status"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook deliveries counter: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache lookups by cache type and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordPlanDecision records a plan limit check
func (m *OTelMetrics) RecordPlanDecision(ctx context.Context, resource, outcome string) {
	m.planDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plan.resource", resource),
		attribute.String("plan.outcome", outcome),
	))
}

// RecordInvoice records a generated invoice
func (m *OTelMetrics) RecordInvoice(ctx context.Context, status, currency string, totalCents int64) {
	m.invoicesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("invoice.status", status)))
	if totalCents > 0 {
		m.invoicedCents.Add(ctx, totalCents, metric.WithAttributes(attribute.String("invoice.currency", currency)))
	}
}

// RecordDocumentRender records a rendered contract document
func (m *OTelMetrics) RecordDocumentRender(ctx context.Context, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("status", statusLabel(err)))
	m.documentRenders.Add(ctx, 1, attrs)
	m.documentRenderDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAIDraft records an AI completion and its token usage
func (m *OTelMetrics) RecordAIDraft(ctx context.Context, kind string, duration time.Duration, promptTokens, completionTokens int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("draft.kind", kind),
		attribute.String("status", statusLabel(err)),
	)
	m.aiDrafts.Add(ctx, 1, attrs)
	m.aiDraftDuration.Record(ctx, duration.Seconds(), attrs)
	m.aiTokens.Add(ctx, int64(promptTokens), metric.WithAttributes(attribute.String("token.type", "prompt")))
	m.aiTokens.Add(ctx, int64(completionTokens), metric.WithAttributes(attribute.String("token.type", "completion")))
}

// RecordWebhookDelivery records a webhook delivery attempt
func (m *OTelMetrics) RecordWebhookDelivery(ctx context.Context, event, status string) {
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("webhook.event", event),
		attribute.String("status", status),
	))
}

// RecordCacheLookup records a cache hit or miss
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, cacheType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.type", cacheType),
		attribute.String("cache.result", result),
	))
}
