package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eventcover/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const (
	defaultEventListLimit = 50
	maxEventListLimit     = 500
)

const paymentColumns = `SELECT id, policy_id, partner_id, payment_number, stripe_payment_intent_id,
	stripe_charge_id, stripe_customer_id, amount, currency, status, payment_method,
	payment_method_details, receipt_url, failure_code, failure_message, refund_amount,
	refunded_at, paid_at, metadata, created_at, updated_at
 FROM payments`

// InsertPayment reports false when the payment number is already taken.
func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, p *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "payment_number"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindPaymentByIntentID(ctx context.Context, db *gorm.DB, intentID string) (*domain.Payment, error) {
	return r.findPayment(ctx, db, paymentColumns+` WHERE stripe_payment_intent_id = ? ORDER BY created_at DESC LIMIT 1`, intentID)
}

func (r *repo) FindPaymentByChargeID(ctx context.Context, db *gorm.DB, chargeID string) (*domain.Payment, error) {
	return r.findPayment(ctx, db, paymentColumns+` WHERE stripe_charge_id = ? ORDER BY created_at DESC LIMIT 1`, chargeID)
}

func (r *repo) findPayment(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var item domain.Payment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListPaymentsByPolicy(ctx context.Context, db *gorm.DB, policyID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		paymentColumns+` WHERE policy_id = ? ORDER BY created_at ASC, id ASC`,
		policyID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkPaymentFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, code, message string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, failure_code = ?, failure_message = ?, updated_at = ?
		 WHERE id = ?`,
		domain.PaymentStatusFailed,
		code,
		message,
		at,
		id,
	).Error
}

func (r *repo) ApplyRefund(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, status domain.PaymentStatus, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, refund_amount = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		amount,
		at,
		at,
		id,
	).Error
}

// InsertEvent claims the ledger row for event. It reports false when the
// provider event id was seen before.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := db.WithContext(ctx).
		Omit("error").
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, id string) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, source, event_type, payload, processed, processed_at, error, attempts, received_at
		 FROM webhook_events
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) BeginAttempt(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET attempts = attempts + 1
		 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = ?, processed_at = ?, error = NULL
		 WHERE id = ?`,
		true,
		processedAt,
		id,
	).Error
}

func (r *repo) MarkEventFailed(ctx context.Context, db *gorm.DB, id string, message string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = ?, error = ?
		 WHERE id = ?`,
		false,
		message,
		id,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, req domain.ListEventsRequest) ([]domain.WebhookEvent, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	if limit > maxEventListLimit {
		limit = maxEventListLimit
	}

	stmt := db.WithContext(ctx).Model(&domain.WebhookEvent{})
	if req.Processed != nil {
		stmt = stmt.Where("processed = ?", *req.Processed)
	}

	var items []domain.WebhookEvent
	err := stmt.
		Order("received_at desc, id desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
