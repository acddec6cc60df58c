package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/eventcover/internal/clock"
	obsmetrics "github.com/smallbiznis/eventcover/internal/observability/metrics"
	policydomain "github.com/smallbiznis/eventcover/internal/policy/domain"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobExpireQuotes   = "expire_quotes"
	JobExpirePolicies = "expire_policies"
	JobStaleEvents    = "stale_webhook_events"

	lockKeyPrefix = "scheduler:job:"
)

// Locker keeps a job to a single replica per run.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Quotes   quotedomain.Repository
	Policies policydomain.Repository
	Config   Config
	Locker   Locker              `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	quotes   quotedomain.Repository
	policies policydomain.Repository
	cfg      Config
	locker   Locker
	metrics  *obsmetrics.Metrics
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		quotes:   p.Quotes,
		policies: p.Policies,
		cfg:      p.Config.withDefaults(),
		locker:   p.Locker,
		metrics:  p.Metrics,
	}
}

// RunOnce runs every enabled job a single time. A failing job does not stop the rest.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpireQuotes, s.ExpireQuotesJob},
		{JobExpirePolicies, s.ExpirePoliciesJob},
		{JobStaleEvents, s.StaleEventsJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, 30*time.Second, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))

	release, ok := s.acquire(ctx, name)
	if !ok {
		log.Debug("job held by another replica")
		s.metrics.RecordJobRun(ctx, name, "skipped")
		return nil
	}
	defer release()

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		log.Debug("job finished", zap.Duration("duration", time.Since(start)))
		s.metrics.RecordJobRun(ctx, name, "ok")
		return nil
	}

	// deadline is a soft timeout, the next tick picks up the remainder
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		s.metrics.RecordJobRun(context.WithoutCancel(ctx), name, "timeout")
		return nil
	}
	s.metrics.RecordJobRun(ctx, name, "error")
	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the job lock when a locker is configured. An unreachable
// lock backend lets the job run, the sweeps are safe to repeat.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}

	key := lockKeyPrefix + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("job lock unavailable, running unlocked", zap.String("job", name), zap.Error(err))
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("failed to release job lock", zap.String("job", name), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) isJobEnabled(name string) bool {
	// empty list runs everything
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), name) {
			return true
		}
	}
	return false
}
