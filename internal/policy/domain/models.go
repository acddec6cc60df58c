package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

const CancellationReasonRefunded = "Payment refunded"

type Policy struct {
	ID                 snowflake.ID        `json:"id" gorm:"primaryKey"`
	PartnerID          snowflake.ID        `json:"partner_id" gorm:"not null;index"`
	QuoteID            snowflake.ID        `json:"quote_id" gorm:"not null;uniqueIndex"`
	PolicyNumber       string              `json:"policy_number" gorm:"type:text;not null;uniqueIndex"`
	EventType          string              `json:"event_type" gorm:"type:text;not null"`
	EventDate          time.Time           `json:"event_date" gorm:"not null"`
	Participants       int                 `json:"participants" gorm:"not null"`
	CoverageType       string              `json:"coverage_type" gorm:"type:text;not null"`
	Location           string              `json:"location,omitempty"`
	DurationHours      int                 `json:"duration_hours,omitempty"`
	RiskMultiplier     decimal.NullDecimal `json:"risk_multiplier"`
	EventDetails       datatypes.JSON      `json:"event_details,omitempty" gorm:"type:jsonb"`
	Metadata           datatypes.JSON      `json:"metadata,omitempty" gorm:"type:jsonb"`
	Premium            decimal.Decimal     `json:"premium" gorm:"type:numeric(12,2);not null"`
	Commission         decimal.Decimal     `json:"commission" gorm:"type:numeric(12,2);not null"`
	Status             Status              `json:"status" gorm:"type:text;not null"`
	EffectiveDate      time.Time           `json:"effective_date" gorm:"not null"`
	ExpirationDate     time.Time           `json:"expiration_date" gorm:"not null"`
	CustomerEmail      string              `json:"customer_email" gorm:"not null"`
	CustomerName       string              `json:"customer_name" gorm:"not null"`
	CustomerPhone      string              `json:"customer_phone,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time           `json:"updated_at" gorm:"not null"`
}

func (Policy) TableName() string { return "policies" }
