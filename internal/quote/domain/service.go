package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, quote *Quote) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Quote, error)
	MarkAccepted(ctx context.Context, db *gorm.DB, id snowflake.ID, acceptedAt time.Time) error
	ExpirePending(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
}

type Service interface {
	GetByID(ctx context.Context, id string) (Quote, error)
}

var (
	ErrInvalidID  = errors.New("invalid_id")
	ErrNotFound   = errors.New("quote_not_found")
	ErrNotPending = errors.New("quote_not_pending")
	ErrExpired    = errors.New("quote_expired")
)
