package seed

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	quoterepo "github.com/smallbiznis/eventcover/internal/quote/repository"
	"github.com/smallbiznis/eventcover/internal/testing/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// lateRepo lets a competing replica insert the demo quote between the
// existence check and this replica's insert.
type lateRepo struct {
	quotedomain.Repository
	winner *quotedomain.Quote
}

func (r *lateRepo) Insert(ctx context.Context, db *gorm.DB, q *quotedomain.Quote) error {
	if err := r.Repository.Insert(ctx, db, r.winner); err != nil {
		return err
	}
	return r.Repository.Insert(ctx, db, q)
}

func TestEnsureDemoQuoteIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := quoterepo.Provide()

	first, err := EnsureDemoQuote(context.Background(), db, node, repo, now)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusPending, first.Status)
	assert.NoError(t, first.ReadyForCheckout(now))

	second, err := EnsureDemoQuote(context.Background(), db, node, repo, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	dbtest.AssertCount(t, db, `SELECT COUNT(*) FROM quotes WHERE quote_number = ?`, 1, DemoQuoteNumber)
}

func TestEnsureDemoQuoteRequiresHandles(t *testing.T) {
	_, err := EnsureDemoQuote(context.Background(), nil, nil, quoterepo.Provide(), time.Now())
	require.Error(t, err)
}

func TestEnsureDemoQuoteReturnsQuoteSeededConcurrently(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	winner := &quotedomain.Quote{
		ID:           node.Generate(),
		PartnerID:    node.Generate(),
		QuoteNumber:  DemoQuoteNumber,
		EventType:    "wedding",
		EventDate:    now.Add(60 * 24 * time.Hour),
		Participants: 80,
		CoverageType: "liability",
		Premium:      decimal.RequireFromString("150.00"),
		Status:       quotedomain.StatusPending,
		ExpiresAt:    now.Add(time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	repo := &lateRepo{Repository: quoterepo.Provide(), winner: winner}

	got, err := EnsureDemoQuote(context.Background(), db, node, repo, now)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, 80, got.Participants)
	dbtest.AssertCount(t, db, `SELECT COUNT(*) FROM quotes WHERE quote_number = ?`, 1, DemoQuoteNumber)
}
