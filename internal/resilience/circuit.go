package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// Closed lets every call through.
	Closed BreakerState = iota
	// Open rejects calls until the cooldown has passed.
	Open
	// HalfOpen lets a probe call through.
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned without calling the service while the breaker is open.
var ErrBreakerOpen = eris.New("resilience: circuit open")

// Breaker stops hammering a service after Threshold consecutive transient
// failures and probes it again after Cooldown.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration
	// OnChange is called with the old and new state on every transition.
	OnChange func(from, to BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// 5 failures and 30 seconds.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// State returns the current state, reporting HalfOpen once the cooldown of an
// open breaker has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.clock().Sub(b.openedAt) >= b.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Guard runs fn through the breaker. Only transient errors count as failures;
// a permanent error such as a malformed query says nothing about the
// service's health.
func Guard[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.clock().Sub(b.openedAt) >= b.Cooldown {
		b.move(HalfOpen)
		return nil
	}
	return ErrBreakerOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !IsTransient(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.move(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.Threshold {
		b.openedAt = b.clock()
		b.move(Open)
	}
}

func (b *Breaker) move(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnChange != nil {
		b.OnChange(from, to)
	}
}

func (b *Breaker) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}
