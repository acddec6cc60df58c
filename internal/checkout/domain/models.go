package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutQuote is the subset of a quote needed to open a hosted checkout.
type CheckoutQuote struct {
	ID            string
	QuoteNumber   string
	PartnerID     string
	Premium       decimal.Decimal
	CoverageType  string
	EventType     string
	EventDate     time.Time
	Participants  int
	Location      string
	CustomerEmail string
	CustomerName  string
}

type SessionResult struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStatus is the raw status view of a checkout session.
type SessionStatus struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	AmountTotal     decimal.Decimal   `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// PaymentDetails describes a paid session with its intent and latest charge.
type PaymentDetails struct {
	SessionID       string            `json:"session_id"`
	PaymentIntentID string            `json:"payment_intent_id"`
	ChargeID        string            `json:"charge_id,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	ReceiptURL      string            `json:"receipt_url,omitempty"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	CustomerName    string            `json:"customer_name,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}
