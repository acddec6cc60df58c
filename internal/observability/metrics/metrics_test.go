package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "charge.refunded"),
		attribute.String("customer_email", "a@example.com"),
		attribute.String("quote_id", "123"),
		attribute.String("outcome", "processed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "customer_email" || attr.Key == "quote_id" {
			t.Fatalf("expected %s to be dropped", attr.Key)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookEvent(context.Background(), "stripe", "charge.refunded", "processed")
	m.RecordPolicyIssued(context.Background(), "liability")
	m.RecordProviderRetry(context.Background(), "checkout.session.create", "rate_limit")
	m.RecordJobRun(context.Background(), "expire_quotes", "ok")
	m.RecordQuotesExpired(context.Background(), 3)
	m.RecordStaleEvents(context.Background(), 1)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "eventcover"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordCheckoutSession(context.Background(), "created")
	m.RecordPolicyCancelled(context.Background(), "refund")
	m.RecordJobRun(context.Background(), "stale_webhook_events", "skipped")
	m.RecordQuotesExpired(context.Background(), 2)
	m.RecordStaleEvents(context.Background(), 0)
}
