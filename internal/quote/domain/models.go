package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
	StatusDeclined Status = "declined"
)

// Quote is a priced offer for covering a single event. Pricing happens
// upstream; this service only reads quotes and accepts them on payment.
type Quote struct {
	ID             snowflake.ID        `json:"id" gorm:"primaryKey"`
	PartnerID      snowflake.ID        `json:"partner_id" gorm:"not null;index"`
	QuoteNumber    string              `json:"quote_number" gorm:"type:text;not null"`
	EventType      string              `json:"event_type" gorm:"type:text;not null"`
	EventDate      time.Time           `json:"event_date" gorm:"not null"`
	Participants   int                 `json:"participants" gorm:"not null"`
	CoverageType   string              `json:"coverage_type" gorm:"type:text;not null"`
	Premium        decimal.Decimal     `json:"premium" gorm:"type:numeric(12,2);not null"`
	Commission     decimal.Decimal     `json:"commission" gorm:"type:numeric(12,2);not null"`
	Status         Status              `json:"status" gorm:"type:text;not null"`
	Location       string              `json:"location,omitempty"`
	DurationHours  int                 `json:"duration_hours,omitempty"`
	RiskMultiplier decimal.NullDecimal `json:"risk_multiplier"`
	CustomerEmail  string              `json:"customer_email,omitempty"`
	CustomerName   string              `json:"customer_name,omitempty"`
	EventDetails   datatypes.JSON      `json:"event_details,omitempty" gorm:"type:jsonb"`
	Metadata       datatypes.JSON      `json:"metadata,omitempty" gorm:"type:jsonb"`
	ExpiresAt      time.Time           `json:"expires_at" gorm:"not null"`
	AcceptedAt     *time.Time          `json:"accepted_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time           `json:"updated_at" gorm:"not null"`
}

func (Quote) TableName() string { return "quotes" }

// ReadyForCheckout reports whether the quote can still be paid at now.
func (q Quote) ReadyForCheckout(now time.Time) error {
	if q.Status != StatusPending {
		return ErrNotPending
	}
	if !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt) {
		return ErrExpired
	}
	return nil
}
