package domain

import (
	"errors"
	"testing"
	"time"
)

func TestReadyForCheckout(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		quote Quote
		want  error
	}{
		{name: "pending", quote: Quote{Status: StatusPending, ExpiresAt: now.Add(time.Hour)}},
		{name: "accepted", quote: Quote{Status: StatusAccepted, ExpiresAt: now.Add(time.Hour)}, want: ErrNotPending},
		{name: "expired at boundary", quote: Quote{Status: StatusPending, ExpiresAt: now}, want: ErrExpired},
		{name: "no expiry", quote: Quote{Status: StatusPending}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.quote.ReadyForCheckout(now); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
