package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

type Payment struct {
	ID                    snowflake.ID        `json:"id" gorm:"primaryKey"`
	PolicyID              snowflake.ID        `json:"policy_id" gorm:"not null;index"`
	PartnerID             snowflake.ID        `json:"partner_id" gorm:"not null"`
	PaymentNumber         string              `json:"payment_number" gorm:"type:text;not null;uniqueIndex"`
	StripePaymentIntentID string              `json:"stripe_payment_intent_id,omitempty" gorm:"column:stripe_payment_intent_id"`
	StripeChargeID        string              `json:"stripe_charge_id,omitempty" gorm:"column:stripe_charge_id"`
	StripeCustomerID      string              `json:"stripe_customer_id,omitempty" gorm:"column:stripe_customer_id"`
	Amount                decimal.Decimal     `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency              string              `json:"currency" gorm:"type:text;not null"`
	Status                PaymentStatus       `json:"status" gorm:"type:text;not null"`
	PaymentMethod         string              `json:"payment_method,omitempty"`
	PaymentMethodDetails  datatypes.JSON      `json:"payment_method_details,omitempty" gorm:"type:jsonb"`
	ReceiptURL            string              `json:"receipt_url,omitempty" gorm:"column:receipt_url"`
	FailureCode           string              `json:"failure_code,omitempty"`
	FailureMessage        string              `json:"failure_message,omitempty"`
	RefundAmount          decimal.NullDecimal `json:"refund_amount"`
	RefundedAt            *time.Time          `json:"refunded_at,omitempty"`
	PaidAt                *time.Time          `json:"paid_at,omitempty"`
	Metadata              datatypes.JSON      `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt             time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time           `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// CardDetails is stored as payment_method_details for card payments.
type CardDetails struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int64  `json:"exp_month,omitempty"`
	ExpYear  int64  `json:"exp_year,omitempty"`
}

// WebhookEvent is the idempotency ledger row keyed by the upstream event id.
type WebhookEvent struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	Source      string         `json:"source" gorm:"type:text;not null"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Processed   bool           `json:"processed" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	LastError   string         `json:"error,omitempty" gorm:"column:error"`
	Attempts    int            `json:"attempts" gorm:"not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

const (
	EventTypeCheckoutCompleted = "checkout.session.completed"
	EventTypePaymentFailed     = "payment_intent.payment_failed"
	EventTypeChargeRefunded    = "charge.refunded"
)

const (
	MetadataQuoteID      = "quote_id"
	MetadataQuoteNumber  = "quote_number"
	MetadataPartnerID    = "partner_id"
	MetadataCoverageType = "coverage_type"
	MetadataEventType    = "event_type"
	MetadataEventDate    = "event_date"
	MetadataParticipants = "participants"
)

// PaymentEvent is the canonical payment event parsed by adapters. Exactly one
// of Checkout, Failure or Refund is set for handled types; all are nil for
// types the service ignores.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	OccurredAt      time.Time
	RawPayload      []byte

	Checkout *CheckoutCompleted
	Failure  *PaymentFailure
	Refund   *ChargeRefund
}

type CheckoutCompleted struct {
	SessionID       string
	PaymentStatus   string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

type PaymentFailure struct {
	PaymentIntentID string
	FailureCode     string
	FailureMessage  string
	Metadata        map[string]string
}

type ChargeRefund struct {
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	AmountRefunded  int64
	Refunded        bool
	Currency        string
}

// IntentDetails is the subset of a payment intent needed to record a Payment.
type IntentDetails struct {
	ID                string
	Status            string
	Amount            int64
	Currency          string
	CustomerID        string
	ChargeID          string
	ReceiptURL        string
	PaymentMethodType string
	Card              *CardDetails
}

// IngestResult describes what happened to a delivered webhook.
type IngestResult struct {
	EventID   string
	EventType string
}

type ListEventsRequest struct {
	Processed *bool
	Limit     int
}
