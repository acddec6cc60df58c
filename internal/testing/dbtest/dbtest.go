// Package dbtest opens throwaway in-memory databases carrying the service schema.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE quotes (
		id BIGINT PRIMARY KEY,
		partner_id BIGINT NOT NULL,
		quote_number TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_date DATETIME NOT NULL,
		participants INTEGER NOT NULL,
		coverage_type TEXT NOT NULL,
		premium NUMERIC NOT NULL,
		commission NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		location TEXT,
		duration_hours INTEGER,
		risk_multiplier NUMERIC,
		customer_email TEXT,
		customer_name TEXT,
		event_details TEXT,
		metadata TEXT,
		expires_at DATETIME NOT NULL,
		accepted_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_quotes_quote_number ON quotes(quote_number)`,
	`CREATE TABLE policies (
		id BIGINT PRIMARY KEY,
		partner_id BIGINT NOT NULL,
		quote_id BIGINT NOT NULL,
		policy_number TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_date DATETIME NOT NULL,
		participants INTEGER NOT NULL,
		coverage_type TEXT NOT NULL,
		location TEXT,
		duration_hours INTEGER,
		risk_multiplier NUMERIC,
		event_details TEXT,
		metadata TEXT,
		premium NUMERIC NOT NULL,
		commission NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		effective_date DATETIME NOT NULL,
		expiration_date DATETIME NOT NULL,
		customer_email TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT,
		cancelled_at DATETIME,
		cancellation_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_policies_quote_id ON policies(quote_id)`,
	`CREATE UNIQUE INDEX ux_policies_policy_number ON policies(policy_number)`,
	`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		policy_id BIGINT NOT NULL,
		partner_id BIGINT NOT NULL,
		payment_number TEXT NOT NULL,
		stripe_payment_intent_id TEXT,
		stripe_charge_id TEXT,
		stripe_customer_id TEXT,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT,
		payment_method_details TEXT,
		receipt_url TEXT,
		failure_code TEXT,
		failure_message TEXT,
		refund_amount NUMERIC,
		refunded_at DATETIME,
		paid_at DATETIME,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payments_payment_number ON payments(payment_number)`,
	`CREATE TABLE webhook_events (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		processed_at DATETIME,
		error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		received_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh shared-cache in-memory database with the schema applied.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}
	return db
}

// Count runs a COUNT query and returns the result.
func Count(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return count
}

// AssertCount fails the test when query does not count want rows.
func AssertCount(t *testing.T, db *gorm.DB, query string, want int64, args ...any) {
	t.Helper()

	if got := Count(t, db, query, args...); got != want {
		t.Fatalf("expected %d rows for %q, got %d", want, query, got)
	}
}
