package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type hintErr struct{ after time.Duration }

func (e hintErr) Error() string                 { return "rate limited" }
func (e hintErr) Retryable() bool               { return true }
func (e hintErr) RetryAfterHint() time.Duration { return e.after }

func recordSleeps(out *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*out = append(*out, d)
		return ctx.Err()
	}
}

func TestRetryBackoffSequence(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	attempts, err := retry(context.Background(), DefaultRetryPolicy(), func(context.Context) error {
		calls++
		return errTest
	}, recordSleeps(&sleeps))

	if !errors.Is(err, errTest) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 4 || calls != 4 {
		t.Fatalf("attempts = %d, calls = %d; want 4, 4", attempts, calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %s, want %s", i, sleeps[i], want[i])
		}
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	attempts, err := retry(context.Background(), DefaultRetryPolicy(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errTest
		}
		return nil
	}, recordSleeps(&sleeps))
	if err != nil || attempts != 2 {
		t.Fatalf("attempts = %d, err = %v", attempts, err)
	}
}

func TestRetrySkipsNonRetryable(t *testing.T) {
	var sleeps []time.Duration
	attempts, err := retry(context.Background(), DefaultRetryPolicy(), func(context.Context) error {
		return fmt.Errorf("wrapped: %w", clientErr{})
	}, recordSleeps(&sleeps))
	if attempts != 1 || len(sleeps) != 0 {
		t.Fatalf("attempts = %d, sleeps = %v; want a single attempt", attempts, sleeps)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRetryHonoursRetryAfterHint(t *testing.T) {
	var sleeps []time.Duration
	p := DefaultRetryPolicy()
	p.MaxRetries = 1
	_, _ = retry(context.Background(), p, func(context.Context) error {
		return hintErr{after: time.Second}
	}, recordSleeps(&sleeps))
	if len(sleeps) != 1 || sleeps[0] != time.Second {
		t.Fatalf("sleeps = %v, want [1s]", sleeps)
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts, err := Retry(ctx, DefaultRetryPolicy(), func(context.Context) error { return errTest })
	if attempts != 1 || !errors.Is(err, errTest) {
		t.Fatalf("attempts = %d, err = %v", attempts, err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", errTest, true},
		{"client", clientErr{}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDelayCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Multiplier: 10, MaxDelay: 3 * time.Second}
	if d := p.Delay(2); d != 3*time.Second {
		t.Fatalf("Delay(2) = %s, want 3s", d)
	}
}
