package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	stripego "github.com/stripe/stripe-go/v79"
)

// ErrorKind classifies provider failures for retry and HTTP mapping decisions.
type ErrorKind string

const (
	KindCard           ErrorKind = "card_error"
	KindRateLimit      ErrorKind = "rate_limit"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindAPI            ErrorKind = "api_error"
	KindConnection     ErrorKind = "connection_error"
	KindAuth           ErrorKind = "auth_error"
	KindUnknown        ErrorKind = "unknown"
)

// Retryable reports whether another attempt can change the outcome.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindCard, KindInvalidRequest, KindAuth:
		return false
	default:
		return true
	}
}

// ProviderError is a classified failure returned by Client.
type ProviderError struct {
	Kind        ErrorKind
	Code        string
	DeclineCode string
	Message     string
	StatusCode  int
	RequestID   string
	Err         error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Classify maps any error from the provider SDK into a ProviderError.
// It returns nil for a nil error.
func Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var classified *ProviderError
	if errors.As(err, &classified) {
		return classified
	}

	var se *stripego.Error
	if errors.As(err, &se) {
		return &ProviderError{
			Kind:        kindFromStripeError(se),
			Code:        string(se.Code),
			DeclineCode: string(se.DeclineCode),
			Message:     se.Msg,
			StatusCode:  se.HTTPStatusCode,
			RequestID:   se.RequestID,
			Err:         err,
		}
	}

	kind := KindUnknown
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		kind = KindConnection
	}
	return &ProviderError{Kind: kind, Message: err.Error(), Err: err}
}

func kindFromStripeError(se *stripego.Error) ErrorKind {
	switch {
	case se.HTTPStatusCode == http.StatusUnauthorized,
		se.HTTPStatusCode == http.StatusForbidden:
		return KindAuth
	case se.HTTPStatusCode == http.StatusTooManyRequests,
		string(se.Code) == "rate_limit":
		return KindRateLimit
	}

	switch se.Type {
	case stripego.ErrorTypeCard:
		return KindCard
	case stripego.ErrorTypeInvalidRequest, stripego.ErrorTypeIdempotency:
		return KindInvalidRequest
	case stripego.ErrorTypeAPI:
		return KindAPI
	}
	if se.HTTPStatusCode >= http.StatusInternalServerError {
		return KindAPI
	}
	return KindUnknown
}

// KindOf returns the classification of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if pe := Classify(err); pe != nil {
		return pe.Kind
	}
	return ""
}

// IsPermanent reports errors that must not be retried.
func IsPermanent(err error) bool {
	pe := Classify(err)
	return pe != nil && !pe.Kind.Retryable()
}
