package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/webhooks/:provider"),
		attribute.String("customer_email", "a@example.com"),
		attribute.String("stripe.signature", "t=1,v1=abc"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("expected only http.route, got %v", attrs)
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	err := SafeError(errors.New(strings.Repeat("x", 1000)))
	if len(err.Error()) != maxErrorLength {
		t.Fatalf("expected %d characters, got %d", maxErrorLength, len(err.Error()))
	}
	if SafeError(nil) != nil {
		t.Fatal("expected nil error to stay nil")
	}
}
