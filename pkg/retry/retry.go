// Package retry is the bounded retry-with-backoff utility shared by broadcast,
// confirmation and node failover.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wallet-engine/pkg/types"
)

// Policy bounds a retry loop
type Policy struct {
	// MaxAttempts counts the first call; values below 1 mean one attempt
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single pause, zero means uncapped
	MaxDelay time.Duration
}

// Default is the small fixed retry count used for ordinary RPC reads
var Default = Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

// Predicate decides whether an error is worth another attempt
type Predicate func(error) bool

// Transient retries RateLimited, StaleSigningContext and NodeUnavailable
func Transient(err error) bool {
	return types.KindOf(err).Transient()
}

// OnlyKinds builds a predicate accepting the listed error kinds
func OnlyKinds(kinds ...types.ErrorKind) Predicate {
	return func(err error) bool {
		k := types.KindOf(err)
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	}
}

// Notify is called before each pause with the failed attempt number (1-based)
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a non-retryable error, exhausts the
// policy or ctx ends. Pauses grow linearly from BaseDelay; a RateLimited error
// carrying a RetryAfter hint replaces the next pause with the hint.
func Do(ctx context.Context, p Policy, retryable Predicate, op func(ctx context.Context) error) error {
	return DoNotify(ctx, p, retryable, op, nil)
}

// DoNotify is Do with a per-retry callback.
func DoNotify(ctx context.Context, p Policy, retryable Predicate, op func(ctx context.Context) error, notify Notify) error {
	if retryable == nil {
		retryable = Transient
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := &hinted{BackOff: &Linear{Base: p.BaseDelay, Max: p.MaxDelay}}
	bounded := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		b.next = types.RetryAfterOf(err)
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}
	return backoff.RetryNotify(operation, bounded, onRetry)
}

// Linear yields Base, 2*Base, 3*Base ... capped at Max.
type Linear struct {
	Base time.Duration
	Max  time.Duration
	n    int
}

func (l *Linear) NextBackOff() time.Duration {
	l.n++
	d := l.Base * time.Duration(l.n)
	if l.Max > 0 && d > l.Max {
		d = l.Max
	}
	return d
}

func (l *Linear) Reset() {
	l.n = 0
}

// hinted substitutes a one-shot server hint for the next computed pause
type hinted struct {
	backoff.BackOff
	next time.Duration
}

func (h *hinted) NextBackOff() time.Duration {
	d := h.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if h.next > 0 {
		d = h.next
		h.next = 0
	}
	return d
}

// Reset clears the pending hint and the inner schedule.
func (h *hinted) Reset() {
	h.next = 0
	h.BackOff.Reset()
}

// Sleep pauses for d or until ctx ends
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
