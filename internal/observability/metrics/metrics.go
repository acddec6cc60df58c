package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents    metric.Int64Counter
	policiesIssued   metric.Int64Counter
	policyCancels    metric.Int64Counter
	checkoutSessions metric.Int64Counter
	providerRetries  metric.Int64Counter
	jobRuns          metric.Int64Counter
	quotesExpired    metric.Int64Counter
	staleEvents      metric.Int64Gauge
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "eventcover"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("eventcover_webhook_events_total")
	if err != nil {
		return nil, err
	}
	policiesIssued, err := meter.Int64Counter("eventcover_policies_issued_total")
	if err != nil {
		return nil, err
	}
	policyCancels, err := meter.Int64Counter("eventcover_policies_cancelled_total")
	if err != nil {
		return nil, err
	}
	checkoutSessions, err := meter.Int64Counter("eventcover_checkout_sessions_total")
	if err != nil {
		return nil, err
	}
	providerRetries, err := meter.Int64Counter("eventcover_provider_retries_total")
	if err != nil {
		return nil, err
	}

	jobRuns, err := meter.Int64Counter("eventcover_scheduler_job_runs_total")
	if err != nil {
		return nil, err
	}
	quotesExpired, err := meter.Int64Counter("eventcover_quotes_expired_total")
	if err != nil {
		return nil, err
	}
	staleEvents, err := meter.Int64Gauge("eventcover_webhook_events_stale")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:    webhookEvents,
		policiesIssued:   policiesIssued,
		policyCancels:    policyCancels,
		checkoutSessions: checkoutSessions,
		providerRetries:  providerRetries,
		jobRuns:          jobRuns,
		quotesExpired:    quotesExpired,
		staleEvents:      staleEvents,
	}, nil
}

// RecordWebhookEvent counts a webhook delivery by type and outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPolicyIssued(ctx context.Context, coverageType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("coverage_type", strings.TrimSpace(coverageType)))
	m.policiesIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPolicyCancelled(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.policyCancels.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCheckoutSession(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.checkoutSessions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProviderRetry counts a retried provider call by operation and error kind.
func (m *Metrics) RecordProviderRetry(ctx context.Context, operation, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("error_kind", strings.TrimSpace(kind)),
	)
	m.providerRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJobRun counts a scheduler job pass by outcome (ok, error, timeout, skipped).
func (m *Metrics) RecordJobRun(ctx context.Context, job, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordQuotesExpired(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.quotesExpired.Add(ctx, count)
}

// RecordStaleEvents reports how many unprocessed ledger rows the last sweep saw.
func (m *Metrics) RecordStaleEvents(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.staleEvents.Record(ctx, int64(count))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":      {},
	"event_type":    {},
	"outcome":       {},
	"coverage_type": {},
	"reason":        {},
	"operation":     {},
	"error_kind":    {},
	"status_code":   {},
	"job":           {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
