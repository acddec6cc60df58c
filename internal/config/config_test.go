package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		DBType: "postgres",
		Stripe: StripeConfig{
			SecretKey:     "sk_test_123",
			WebhookSecret: "whsec_123",
			Currency:      "usd",
		},
		RateLimit: RateLimitConfig{CheckoutRate: 1, CheckoutBurst: 5},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateReportsMissingStripeSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Stripe.SecretKey = ""
	cfg.Stripe.WebhookSecret = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "STRIPE_SECRET_KEY") {
		t.Fatalf("expected secret key error, got %v", err)
	}
	if !strings.Contains(err.Error(), "STRIPE_WEBHOOK_SECRET") {
		t.Fatalf("expected webhook secret error, got %v", err)
	}
}

func TestValidateRejectsUnsupportedDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.DBType = "sqlite"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected sqlite to be accepted, got %v", err)
	}

	cfg.DBType = "mysql"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_TYPE") {
		t.Fatalf("expected database type error, got %v", err)
	}
}

func TestLoadReadsStripeEnvironment(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", " sk_test_env ")
	t.Setenv("STRIPE_CURRENCY", "EUR")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := Load()
	if cfg.Stripe.SecretKey != "sk_test_env" {
		t.Fatalf("expected trimmed secret key, got %q", cfg.Stripe.SecretKey)
	}
	if cfg.Stripe.Currency != "eur" {
		t.Fatalf("expected lowercase currency, got %q", cfg.Stripe.Currency)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Fatalf("expected 2 brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestValidateCheckoutConfigRejectsRelativeURL(t *testing.T) {
	cfg := DefaultCheckoutConfig()
	if err := validateCheckoutConfig(cfg); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}

	cfg.SuccessURL = "/checkout/success"
	if err := validateCheckoutConfig(cfg); err == nil {
		t.Fatal("expected relative success url to be rejected")
	}
}

func TestLoadReadsSchedulerAndTelemetry(t *testing.T) {
	t.Setenv("SCHEDULER_JOBS", "expire_quotes, stale_webhook_events")
	t.Setenv("SCHEDULER_BATCH_SIZE", "25")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http")
	t.Setenv("OTEL_SAMPLING_RATIO", "")
	t.Setenv("SEED_DEMO_DATA", "yes")

	cfg := Load()
	if len(cfg.Scheduler.Jobs) != 2 || cfg.Scheduler.Jobs[1] != "stale_webhook_events" {
		t.Fatalf("unexpected scheduler jobs %v", cfg.Scheduler.Jobs)
	}
	if cfg.Scheduler.BatchSize != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Telemetry.OtelProtocol != "http" {
		t.Fatalf("expected http protocol, got %q", cfg.Telemetry.OtelProtocol)
	}
	if cfg.Telemetry.SamplingRatio >= 0 {
		t.Fatalf("expected unset sampling ratio, got %v", cfg.Telemetry.SamplingRatio)
	}
	if !cfg.SeedDemoData {
		t.Fatal("expected demo seeding enabled")
	}
}
