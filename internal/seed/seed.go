package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	pkgdb "github.com/smallbiznis/eventcover/pkg/db"
	"gorm.io/gorm"
)

const (
	DemoQuoteNumber   = "QT-DEMO-00001"
	demoCustomerEmail = "demo@eventcover.dev"
	demoCustomerName  = "Demo Customer"
	demoQuoteTTL      = 30 * 24 * time.Hour
)

// EnsureDemoQuote seeds a pending quote that local environments can push
// through checkout. An existing demo quote is left alone.
func EnsureDemoQuote(ctx context.Context, db *gorm.DB, node *snowflake.Node, repo quotedomain.Repository, now time.Time) (*quotedomain.Quote, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}
	if node == nil {
		return nil, errors.New("seed id generator is required")
	}

	existing, err := findDemoQuote(ctx, db)
	if err != nil || existing != nil {
		return existing, err
	}

	q := &quotedomain.Quote{
		ID:            node.Generate(),
		PartnerID:     node.Generate(),
		QuoteNumber:   DemoQuoteNumber,
		EventType:     "wedding",
		EventDate:     now.Add(60 * 24 * time.Hour).Truncate(24 * time.Hour),
		Participants:  120,
		CoverageType:  "liability",
		Premium:       decimal.RequireFromString("150.00"),
		Commission:    decimal.RequireFromString("22.50"),
		Status:        quotedomain.StatusPending,
		Location:      "Austin, TX",
		DurationHours: 6,
		CustomerEmail: demoCustomerEmail,
		CustomerName:  demoCustomerName,
		ExpiresAt:     now.Add(demoQuoteTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = repo.Insert(ctx, db, q)
	if err == nil {
		return q, nil
	}
	// another replica seeded it first
	if pkgdb.IsDuplicateKeyErr(err) {
		existing, findErr := findDemoQuote(ctx, db)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, err
}

func findDemoQuote(ctx context.Context, db *gorm.DB) (*quotedomain.Quote, error) {
	var existing quotedomain.Quote
	err := db.WithContext(ctx).
		Where("quote_number = ?", DemoQuoteNumber).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}
