// Package retry holds the explicit retry policy applied to dataset fetches.
// It is deliberately not used by the geostore fallback chain.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/samirrijal/forestlens/internal/core/domain"
)

// Policy retries a call with jittered exponential backoff.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// ShouldRetry decides whether err is transient. Nil means Transient.
	ShouldRetry func(error) bool
}

// None never retries.
var None = Policy{}

// Transient reports whether err is a retriable upstream failure that callers
// would not see anyway. RATE_LIMIT and TIMEOUT are surfaced, not retried.
func Transient(err error) bool {
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	if ue.Code == domain.CodeRateLimit || ue.Code == domain.CodeTimeout {
		return false
	}
	return ue.Retriable
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.RandomizationFactor = 0.5
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxRetries)), ctx)
}

// Do runs fn until it succeeds, returns a non-transient error, or the retry
// budget is spent. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	if p.MaxRetries <= 0 {
		return fn()
	}
	should := p.ShouldRetry
	if should == nil {
		should = Transient
	}

	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !should(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
