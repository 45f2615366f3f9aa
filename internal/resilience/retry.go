package resilience

import (
	"context"
	"errors"
	"net"
	"time"
)

// Retryable is implemented by errors that know whether a retry may succeed.
type Retryable interface {
	Retryable() bool
}

// IsRetryable classifies an error as transient. Errors implementing Retryable
// decide for themselves; timeouts and deadline expiry of a single attempt are
// retryable; everything else, including a cancelled caller, is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// RetryPolicy configures exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy backs off 100ms, 200ms, 400ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2,
		MaxDelay:   5 * time.Second,
	}
}

// Delay returns the wait before retry number n (0-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for range n {
		d *= mult
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Retry runs fn until it succeeds, returns a non-retryable error, the policy
// is exhausted, or ctx is done. It returns the number of attempts made.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) (int, error) {
	return retry(ctx, p, fn, sleepCtx)
}

func retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error, sleep func(context.Context, time.Duration) error) (int, error) {
	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if attempts > p.MaxRetries || !IsRetryable(err) {
			return attempts, err
		}
		delay := p.Delay(attempts - 1)
		var ra interface{ RetryAfterHint() time.Duration }
		if errors.As(err, &ra) && ra.RetryAfterHint() > delay {
			delay = ra.RetryAfterHint()
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		if serr := sleep(ctx, delay); serr != nil {
			return attempts, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
