package domain

import (
	"context"
	"errors"
)

type Service interface {
	CreateSession(ctx context.Context, quote CheckoutQuote) (SessionResult, error)
	CreateForQuote(ctx context.Context, quoteID string) (SessionResult, error)
	GetSession(ctx context.Context, sessionID string) (SessionStatus, error)
	GetPaymentDetails(ctx context.Context, sessionID string) (PaymentDetails, error)
	ListSessionsByEmail(ctx context.Context, email string, limit int) ([]SessionStatus, error)
	ValidateSessionMetadata(metadata map[string]string) ValidationResult
}

var (
	ErrQuoteIDRequired   = errors.New("quote id and quote number are required")
	ErrInvalidPremium    = errors.New("premium must be greater than zero")
	ErrSessionIDRequired = errors.New("session id is required")
	ErrEmailRequired     = errors.New("customer email is required")
	ErrSessionIncomplete = errors.New("checkout_session_incomplete")
	ErrSessionNotPaid    = errors.New("checkout_session_not_paid")
)
