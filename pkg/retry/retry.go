// Package retry runs remote calls with a bounded, linearly increasing backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = time.Second
)

// Policy bounds a retried operation. Errors for which Permanent returns true
// are surfaced after the attempt that produced them.
type Policy struct {
	MaxAttempts uint
	Delay       time.Duration
	Permanent   func(error) bool
	OnRetry     func(err error, wait time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// Do runs op until it succeeds, fails permanently or exhausts MaxAttempts.
// The wait before attempt n+1 is Delay*n. The last error is returned as is.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = DefaultMaxAttempts
	}
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(&linearBackOff{delay: delay}),
		backoff.WithMaxTries(attempts),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(p.OnRetry)))
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op(ctx)
		if err != nil && p.Permanent != nil && p.Permanent(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, opts...)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return res, err
}

type linearBackOff struct {
	delay   time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
