package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eventcover/internal/clock"
	policydomain "github.com/smallbiznis/eventcover/internal/policy/domain"
	policyrepo "github.com/smallbiznis/eventcover/internal/policy/repository"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	quoterepo "github.com/smallbiznis/eventcover/internal/quote/repository"
	"github.com/smallbiznis/eventcover/internal/testing/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubLocker struct {
	ok       bool
	err      error
	released []string
}

func (l *stubLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "token", l.ok, l.err
}

func (l *stubLocker) Release(ctx context.Context, key, token string) error {
	l.released = append(l.released, key)
	return nil
}

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return &fixture{
		db:    dbtest.Open(t),
		node:  node,
		clock: clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)),
	}
}

func (f *fixture) scheduler(cfg Config, locker Locker) *Scheduler {
	p := Params{
		DB:       f.db,
		Log:      zap.NewNop(),
		Clock:    f.clock,
		Quotes:   quoterepo.Provide(),
		Policies: policyrepo.Provide(),
		Config:   cfg,
	}
	if locker != nil {
		p.Locker = locker
	}
	return New(p)
}

func (f *fixture) quote(t *testing.T, status quotedomain.Status, expiresIn time.Duration) snowflake.ID {
	t.Helper()

	f.seq++
	now := f.clock.Now()
	q := &quotedomain.Quote{
		ID:           f.node.Generate(),
		PartnerID:    f.node.Generate(),
		QuoteNumber:  fmt.Sprintf("QT-20260601-%05d", f.seq),
		EventType:    "concert",
		EventDate:    now.Add(30 * 24 * time.Hour),
		Participants: 300,
		CoverageType: "liability",
		Premium:      decimal.RequireFromString("99.5"),
		Status:       status,
		ExpiresAt:    now.Add(expiresIn),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, quoterepo.Provide().Insert(context.Background(), f.db, q))
	return q.ID
}

func (f *fixture) policy(t *testing.T, status policydomain.Status, endsIn time.Duration) snowflake.ID {
	t.Helper()

	f.seq++
	now := f.clock.Now()
	p := &policydomain.Policy{
		ID:             f.node.Generate(),
		PartnerID:      f.node.Generate(),
		QuoteID:        f.node.Generate(),
		PolicyNumber:   fmt.Sprintf("POL-20260601-%05d", f.seq),
		EventType:      "concert",
		EventDate:      now.Add(endsIn).Add(-24 * time.Hour),
		Participants:   300,
		CoverageType:   "liability",
		Premium:        decimal.RequireFromString("99.5"),
		Commission:     decimal.Zero,
		Status:         status,
		EffectiveDate:  now.Add(-30 * 24 * time.Hour),
		ExpirationDate: now.Add(endsIn),
		CustomerEmail:  "buyer@example.com",
		CustomerName:   "Buyer",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inserted, err := policyrepo.Provide().Insert(context.Background(), f.db, p)
	require.NoError(t, err)
	require.True(t, inserted)
	return p.ID
}

func (f *fixture) policyStatus(t *testing.T, id snowflake.ID) policydomain.Status {
	t.Helper()

	p, err := policyrepo.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Status
}

func (f *fixture) event(t *testing.T, id string, processed bool, age time.Duration) {
	t.Helper()

	require.NoError(t, f.db.Exec(
		`INSERT INTO webhook_events (id, source, event_type, payload, processed, error, attempts, received_at)
		 VALUES (?, 'stripe', 'checkout.session.completed', '{}', ?, ?, 2, ?)`,
		id, processed, "quote_not_found", f.clock.Now().Add(-age),
	).Error)
}

func (f *fixture) status(t *testing.T, id snowflake.ID) quotedomain.Status {
	t.Helper()

	var status string
	require.NoError(t, f.db.Raw(`SELECT status FROM quotes WHERE id = ?`, id).Scan(&status).Error)
	return quotedomain.Status(status)
}

func TestExpireQuotesJob(t *testing.T) {
	f := newFixture(t)
	stale1 := f.quote(t, quotedomain.StatusPending, -time.Hour)
	stale2 := f.quote(t, quotedomain.StatusPending, -2*time.Hour)
	boundary := f.quote(t, quotedomain.StatusPending, 0)
	live := f.quote(t, quotedomain.StatusPending, time.Hour)
	accepted := f.quote(t, quotedomain.StatusAccepted, -time.Hour)

	s := f.scheduler(Config{BatchSize: 1}, nil)
	require.NoError(t, s.ExpireQuotesJob(context.Background()))

	assert.Equal(t, quotedomain.StatusExpired, f.status(t, stale1))
	assert.Equal(t, quotedomain.StatusExpired, f.status(t, stale2))
	assert.Equal(t, quotedomain.StatusExpired, f.status(t, boundary))
	assert.Equal(t, quotedomain.StatusPending, f.status(t, live))
	assert.Equal(t, quotedomain.StatusAccepted, f.status(t, accepted))
}

func TestExpirePoliciesJob(t *testing.T) {
	f := newFixture(t)
	lapsed1 := f.policy(t, policydomain.StatusActive, -time.Hour)
	lapsed2 := f.policy(t, policydomain.StatusActive, -48*time.Hour)
	boundary := f.policy(t, policydomain.StatusActive, 0)
	running := f.policy(t, policydomain.StatusActive, time.Hour)
	cancelled := f.policy(t, policydomain.StatusCancelled, -time.Hour)

	s := f.scheduler(Config{BatchSize: 2}, nil)
	require.NoError(t, s.ExpirePoliciesJob(context.Background()))

	assert.Equal(t, policydomain.StatusExpired, f.policyStatus(t, lapsed1))
	assert.Equal(t, policydomain.StatusExpired, f.policyStatus(t, lapsed2))
	assert.Equal(t, policydomain.StatusExpired, f.policyStatus(t, boundary))
	assert.Equal(t, policydomain.StatusActive, f.policyStatus(t, running))
	assert.Equal(t, policydomain.StatusCancelled, f.policyStatus(t, cancelled))
}

func TestFindStaleEvents(t *testing.T) {
	f := newFixture(t)
	f.event(t, "evt_old", false, time.Hour)
	f.event(t, "evt_recent", false, time.Minute)
	f.event(t, "evt_done", true, time.Hour)

	s := f.scheduler(Config{StaleEventAfter: 15 * time.Minute}, nil)
	events, err := s.FindStaleEvents(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "evt_old", events[0].ID)
	assert.Equal(t, 2, events[0].Attempts)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, "quote_not_found", *events[0].Error)
	require.NoError(t, s.StaleEventsJob(context.Background()))
}

func TestRunOnceSkipsJobsHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	id := f.quote(t, quotedomain.StatusPending, -time.Hour)

	locker := &stubLocker{ok: false}
	require.NoError(t, f.scheduler(Config{}, locker).RunOnce(context.Background()))

	assert.Equal(t, quotedomain.StatusPending, f.status(t, id))
	assert.Empty(t, locker.released)
}

func TestRunOnceReleasesLocks(t *testing.T) {
	f := newFixture(t)
	id := f.quote(t, quotedomain.StatusPending, -time.Hour)

	locker := &stubLocker{ok: true}
	require.NoError(t, f.scheduler(Config{}, locker).RunOnce(context.Background()))

	assert.Equal(t, quotedomain.StatusExpired, f.status(t, id))
	assert.ElementsMatch(t, []string{
		lockKeyPrefix + JobExpireQuotes,
		lockKeyPrefix + JobExpirePolicies,
		lockKeyPrefix + JobStaleEvents,
	}, locker.released)
}

func TestRunOnceRunsUnlockedWhenLockBackendFails(t *testing.T) {
	f := newFixture(t)
	id := f.quote(t, quotedomain.StatusPending, -time.Hour)

	locker := &stubLocker{err: errors.New("redis down")}
	require.NoError(t, f.scheduler(Config{}, locker).RunOnce(context.Background()))

	assert.Equal(t, quotedomain.StatusExpired, f.status(t, id))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	f := newFixture(t)
	id := f.quote(t, quotedomain.StatusPending, -time.Hour)

	s := f.scheduler(Config{EnabledJobs: []string{JobStaleEvents}}, nil)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, quotedomain.StatusPending, f.status(t, id))

	s = f.scheduler(Config{EnabledJobs: []string{" EXPIRE_QUOTES "}}, nil)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, quotedomain.StatusExpired, f.status(t, id))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 15*time.Minute, cfg.StaleEventAfter)
	assert.Equal(t, 50*time.Second, cfg.LockTTL)

	cfg = Config{RunInterval: 10 * time.Second, LockTTL: time.Minute}.withDefaults()
	assert.Less(t, cfg.LockTTL, cfg.RunInterval)
}
