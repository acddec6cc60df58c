package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/eventcover/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	keyCheckoutClient = "checkout:client:"
	visitorTTL        = 10 * time.Minute
	sweepEvery        = 5000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CheckoutLimiter throttles checkout session creation per client key. It
// uses the shared Redis bucket when available and a process-local
// x/time/rate bucket otherwise, or when Redis errors.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rps    float64
	burst  int
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
}

func NewCheckoutLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *CheckoutLimiter {
	burst := cfg.RateLimit.CheckoutBurst
	if burst <= 0 {
		burst = 1
	}
	return &CheckoutLimiter{
		bucket:   bucket,
		rps:      cfg.RateLimit.CheckoutRate,
		burst:    burst,
		log:      log.Named("ratelimit.checkout"),
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *CheckoutLimiter) Allow(ctx context.Context, key string) Result {
	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, keyCheckoutClient+key, l.rps, l.burst)
		if err == nil {
			return res
		}
		l.log.Warn("shared checkout limiter unavailable, using local bucket", zap.Error(err))
	}

	lim := l.visitor(key)
	if lim.Allow() {
		return Result{Allowed: true, Limit: l.burst, Remaining: int(lim.Tokens())}
	}

	var retryAfter time.Duration
	if l.rps > 0 {
		retryAfter = time.Duration((1 - lim.Tokens()) / l.rps * float64(time.Second))
	}
	return Result{Allowed: false, Limit: l.burst, RetryAfter: retryAfter}
}

func (l *CheckoutLimiter) visitor(key string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// sweep before lookup so a stale entry for key is recreated
	l.lookups++
	if l.lookups >= sweepEvery {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) >= visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lookups = 0
	}

	if v, ok := l.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}
