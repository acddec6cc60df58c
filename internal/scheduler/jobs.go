package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpireQuotesJob flips pending quotes past their expiry to expired, one
// batch per pass until a short batch comes back.
func (s *Scheduler) ExpireQuotesJob(ctx context.Context) error {
	now := s.clock.Now()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.quotes.ExpirePending(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += n
		if n < int64(s.cfg.BatchSize) {
			break
		}
	}

	s.metrics.RecordQuotesExpired(ctx, total)
	if total > 0 {
		s.log.Info("expired pending quotes", zap.Int64("count", total))
	}
	return nil
}

// ExpirePoliciesJob closes out active policies whose event day has passed.
// Cancelled policies keep their status.
func (s *Scheduler) ExpirePoliciesJob(ctx context.Context) error {
	now := s.clock.Now()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.policies.ExpireLapsed(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += n
		if n < int64(s.cfg.BatchSize) {
			break
		}
	}

	if total > 0 {
		s.log.Info("expired lapsed policies", zap.Int64("count", total))
	}
	return nil
}

// StaleEvent is an unprocessed ledger row older than the stale threshold.
type StaleEvent struct {
	ID         string
	EventType  string
	Attempts   int
	Error      *string
	ReceivedAt time.Time
}

// StaleEventsJob reports webhook events that never reconciled. The provider
// keeps redelivering them; this surfaces the ones stuck long enough to need a look.
func (s *Scheduler) StaleEventsJob(ctx context.Context) error {
	events, err := s.FindStaleEvents(ctx)
	if err != nil {
		return err
	}
	s.metrics.RecordStaleEvents(ctx, len(events))
	for _, ev := range events {
		fields := []zap.Field{
			zap.String("provider_event_id", ev.ID),
			zap.String("event_type", ev.EventType),
			zap.Int("attempts", ev.Attempts),
			zap.Time("received_at", ev.ReceivedAt),
		}
		if ev.Error != nil {
			fields = append(fields, zap.String("last_error", *ev.Error))
		}
		s.log.Warn("webhook event still unprocessed", fields...)
	}
	return nil
}

func (s *Scheduler) FindStaleEvents(ctx context.Context) ([]StaleEvent, error) {
	cutoff := s.clock.Now().Add(-s.cfg.StaleEventAfter)

	var events []StaleEvent
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, event_type, attempts, error, received_at
		 FROM webhook_events
		 WHERE processed = ? AND received_at <= ?
		 ORDER BY received_at
		 LIMIT ?`,
		false,
		cutoff,
		s.cfg.BatchSize,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
