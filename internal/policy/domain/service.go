package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert returns false when a unique key (quote or policy number) already exists.
	Insert(ctx context.Context, db *gorm.DB, policy *Policy) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Policy, error)
	FindByQuoteID(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) (*Policy, error)
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, cancelledAt time.Time) (bool, error)
	ExpireLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
}

type Service interface {
	GetByID(ctx context.Context, id string) (Policy, error)
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("policy_not_found")
)
