// Package resilience retries and guards calls to the remote OSM services.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy describes how often and how patiently a call is retried.
type Policy struct {
	// Attempts is the total number of tries including the first. Default 4.
	Attempts int
	// Backoff is the delay before the first retry. Default 2s.
	Backoff time.Duration
	// MaxBackoff caps the exponential delay. Default 1m.
	MaxBackoff time.Duration
	// Jitter is the ± fraction of random spread applied to each delay.
	Jitter float64
	// Retryable overrides IsTransient.
	Retryable func(error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy suits the public Overpass instances, which ask clients to
// back off for tens of seconds when busy.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   4,
		Backoff:    2 * time.Second,
		MaxBackoff: time.Minute,
		Jitter:     0.25,
	}
}

// PolicyFrom builds a policy from configuration values; zero values keep
// the defaults.
func PolicyFrom(attempts int, backoff time.Duration) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if backoff > 0 {
		p.Backoff = backoff
	}
	return p
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = d.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Retry calls fn until it succeeds, fails permanently, runs out of attempts
// or ctx is done. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts-1 {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
		t := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
	return zero, err
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(attempt))
	d = math.Min(d, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetries returns an OnRetry hook that logs through the global logger.
func LogRetries(service string) func(int, error) {
	log := zap.L().With(zap.String("component", "resilience"), zap.String("service", service))
	return func(attempt int, err error) {
		log.Warn("retrying request", zap.Int("attempt", attempt), zap.Error(err))
	}
}
