package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// IntentReader loads payment intents from the provider.
type IntentReader interface {
	GetIntent(ctx context.Context, id string) (*IntentDetails, error)
}

// EventLocker serialises concurrent deliveries of the same event.
type EventLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindPaymentByIntentID(ctx context.Context, db *gorm.DB, intentID string) (*Payment, error)
	FindPaymentByChargeID(ctx context.Context, db *gorm.DB, chargeID string) (*Payment, error)
	ListPaymentsByPolicy(ctx context.Context, db *gorm.DB, policyID snowflake.ID) ([]Payment, error)
	MarkPaymentFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, code, message string, at time.Time) error
	ApplyRefund(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, status PaymentStatus, at time.Time) error

	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, id string) (*WebhookEvent, error)
	BeginAttempt(ctx context.Context, db *gorm.DB, id string) error
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id string, processedAt time.Time) error
	MarkEventFailed(ctx context.Context, db *gorm.DB, id string, message string) error
	ListEvents(ctx context.Context, db *gorm.DB, req ListEventsRequest) ([]WebhookEvent, error)
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (IngestResult, error)
	ListEvents(ctx context.Context, req ListEventsRequest) ([]WebhookEvent, error)
}

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrEventInProgress       = errors.New("event_in_progress")
	ErrMissingMetadata       = errors.New("missing_metadata")
	ErrInvalidMetadata       = errors.New("invalid_metadata")
	ErrQuoteNotFound         = errors.New("quote_not_found")
	ErrPaymentIntentMissing  = errors.New("payment_intent_missing")
	ErrNumberExhausted       = errors.New("number_generation_exhausted")
)
