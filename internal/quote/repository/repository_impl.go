package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventcover/internal/quote/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, q *domain.Quote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO quotes (
			id, partner_id, quote_number, event_type, event_date, participants,
			coverage_type, premium, commission, status, location, duration_hours,
			risk_multiplier, customer_email, customer_name, event_details, metadata,
			expires_at, accepted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID,
		q.PartnerID,
		q.QuoteNumber,
		q.EventType,
		q.EventDate,
		q.Participants,
		q.CoverageType,
		q.Premium,
		q.Commission,
		q.Status,
		q.Location,
		q.DurationHours,
		q.RiskMultiplier,
		q.CustomerEmail,
		q.CustomerName,
		q.EventDetails,
		q.Metadata,
		q.ExpiresAt,
		q.AcceptedAt,
		q.CreatedAt,
		q.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Quote, error) {
	var item domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT id, partner_id, quote_number, event_type, event_date, participants,
			coverage_type, premium, commission, status, location, duration_hours,
			risk_multiplier, customer_email, customer_name, event_details, metadata,
			expires_at, accepted_at, created_at, updated_at
		 FROM quotes
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkAccepted(ctx context.Context, db *gorm.DB, id snowflake.ID, acceptedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET status = ?, accepted_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusAccepted,
		acceptedAt,
		acceptedAt,
		id,
	).Error
}

// ExpirePending moves up to limit pending quotes whose expiry has passed to expired.
func (r *repo) ExpirePending(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET status = ?, updated_at = ?
		 WHERE id IN (
			SELECT id FROM quotes
			WHERE status = ? AND expires_at <= ?
			ORDER BY expires_at
			LIMIT ?
		 )`,
		domain.StatusExpired,
		now,
		domain.StatusPending,
		now,
		limit,
	)
	return res.RowsAffected, res.Error
}
