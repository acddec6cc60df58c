package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventcover/internal/policy/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, partner_id, quote_id, policy_number, event_type, event_date,
	participants, coverage_type, location, duration_hours, risk_multiplier, event_details,
	metadata, premium, commission, status, effective_date, expiration_date, customer_email,
	customer_name, customer_phone, cancelled_at, cancellation_reason, created_at, updated_at
 FROM policies`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Policy) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Policy, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindByQuoteID(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) (*domain.Policy, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE quote_id = ? LIMIT 1`, quoteID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Policy, error) {
	var item domain.Policy
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// Cancel moves an active policy to cancelled. It reports false when the
// policy was not active.
func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, cancelledAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE policies
		 SET status = ?, cancelled_at = ?, cancellation_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCancelled,
		cancelledAt,
		reason,
		cancelledAt,
		id,
		domain.StatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpireLapsed moves up to limit active policies whose coverage ended at or
// before now to expired and reports how many changed.
func (r *repo) ExpireLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE policies
		 SET status = ?, updated_at = ?
		 WHERE id IN (
			SELECT id FROM policies
			WHERE status = ? AND expiration_date <= ?
			ORDER BY expiration_date
			LIMIT ?
		 )`,
		domain.StatusExpired,
		now,
		domain.StatusActive,
		now,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
