package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eventcover/internal/policy/domain"
	"github.com/smallbiznis/eventcover/internal/policy/repository"
	"github.com/smallbiznis/eventcover/internal/testing/dbtest"
)

func newPolicy(node *snowflake.Node, quoteID snowflake.ID, number string, now time.Time) *domain.Policy {
	return &domain.Policy{
		ID:             node.Generate(),
		PartnerID:      7,
		QuoteID:        quoteID,
		PolicyNumber:   number,
		EventType:      "concert",
		EventDate:      now.AddDate(0, 0, 10),
		Participants:   300,
		CoverageType:   "liability",
		Premium:        decimal.RequireFromString("99.90"),
		Status:         domain.StatusActive,
		EffectiveDate:  now,
		ExpirationDate: now.AddDate(0, 0, 11),
		CustomerEmail:  "host@example.com",
		CustomerName:   "Host",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestInsertIsUniquePerQuote(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := repository.Provide()

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	quoteID := node.Generate()

	inserted, err := repo.Insert(ctx, db, newPolicy(node, quoteID, "POL-20260310-00001", now))
	if err != nil || !inserted {
		t.Fatalf("expected first insert to succeed, inserted=%v err=%v", inserted, err)
	}

	inserted, err = repo.Insert(ctx, db, newPolicy(node, quoteID, "POL-20260310-00002", now))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected second policy for the same quote to be rejected")
	}

	inserted, err = repo.Insert(ctx, db, newPolicy(node, node.Generate(), "POL-20260310-00001", now))
	if err != nil {
		t.Fatalf("third insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate policy number to be rejected")
	}

	dbtest.AssertCount(t, db, "SELECT COUNT(1) FROM policies", 1)

	found, err := repo.FindByQuoteID(ctx, db, quoteID)
	if err != nil {
		t.Fatalf("find by quote: %v", err)
	}
	if found == nil || found.PolicyNumber != "POL-20260310-00001" {
		t.Fatalf("expected stored policy, got %+v", found)
	}
}

func TestCancelOnlyActivePolicies(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := repository.Provide()

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	p := newPolicy(node, node.Generate(), "POL-20260310-00009", now)
	if _, err := repo.Insert(ctx, db, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cancelled, err := repo.Cancel(ctx, db, p.ID, domain.CancellationReasonRefunded, now.Add(time.Hour))
	if err != nil || !cancelled {
		t.Fatalf("expected cancel to apply, cancelled=%v err=%v", cancelled, err)
	}
	cancelled, err = repo.Cancel(ctx, db, p.ID, domain.CancellationReasonRefunded, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if cancelled {
		t.Fatalf("expected cancelled policy to stay untouched")
	}

	found, err := repo.FindByID(ctx, db, p.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Status != domain.StatusCancelled || found.CancellationReason != domain.CancellationReasonRefunded {
		t.Fatalf("unexpected policy state %s / %q", found.Status, found.CancellationReason)
	}
	if found.CancelledAt == nil || !found.CancelledAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected cancelled_at from first cancel, got %v", found.CancelledAt)
	}
}
