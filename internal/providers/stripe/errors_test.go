package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	stripego "github.com/stripe/stripe-go/v79"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		want      ErrorKind
		retryable bool
	}{
		{
			name: "card declined",
			err:  &stripego.Error{Type: stripego.ErrorTypeCard, Code: stripego.ErrorCodeCardDeclined, HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card was declined."},
			want: KindCard,
		},
		{
			name: "invalid request",
			err:  &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest, Msg: "No such checkout.session"},
			want: KindInvalidRequest,
		},
		{
			name: "authentication",
			err:  &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusUnauthorized, Msg: "Invalid API Key provided"},
			want: KindAuth,
		},
		{
			name:      "rate limit",
			err:       &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests, Msg: "Too many requests"},
			want:      KindRateLimit,
			retryable: true,
		},
		{
			name:      "api error",
			err:       &stripego.Error{Type: stripego.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError},
			want:      KindAPI,
			retryable: true,
		},
		{
			name:      "connection",
			err:       &url.Error{Op: "Post", URL: "https://api.stripe.com/v1/checkout/sessions", Err: errors.New("connection refused")},
			want:      KindConnection,
			retryable: true,
		},
		{
			name:      "deadline",
			err:       fmt.Errorf("create session: %w", context.DeadlineExceeded),
			want:      KindConnection,
			retryable: true,
		},
		{
			name:      "generic",
			err:       errors.New("something odd"),
			want:      KindUnknown,
			retryable: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pe := Classify(tc.err)
			if pe == nil {
				t.Fatal("expected classified error")
			}
			if pe.Kind != tc.want {
				t.Fatalf("expected kind %s, got %s", tc.want, pe.Kind)
			}
			if pe.Kind.Retryable() != tc.retryable {
				t.Fatalf("expected retryable=%v for %s", tc.retryable, pe.Kind)
			}
			if IsPermanent(tc.err) == tc.retryable {
				t.Fatalf("IsPermanent disagrees with Retryable for %s", pe.Kind)
			}
		})
	}
}

func TestClassifyPreservesCause(t *testing.T) {
	se := &stripego.Error{Type: stripego.ErrorTypeCard, Code: stripego.ErrorCodeCardDeclined, DeclineCode: "insufficient_funds", Msg: "declined"}
	pe := Classify(fmt.Errorf("wrap: %w", se))

	var unwrapped *stripego.Error
	if !errors.As(pe, &unwrapped) {
		t.Fatal("expected provider error to unwrap to the SDK error")
	}
	if pe.DeclineCode != "insufficient_funds" {
		t.Fatalf("expected decline code, got %q", pe.DeclineCode)
	}
	if Classify(pe) != pe {
		t.Fatal("expected already classified errors to pass through")
	}
	if Classify(nil) != nil || KindOf(nil) != "" {
		t.Fatal("expected nil for nil error")
	}
}
