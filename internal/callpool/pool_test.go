package callpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrentCalls(t *testing.T) {
	const limit = 2
	p := New(limit)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > limit {
		t.Fatalf("peak concurrency %d exceeds %d", peak.Load(), limit)
	}
	if p.InFlight() != 0 {
		t.Fatalf("in flight after completion = %d", p.InFlight())
	}
}

func TestPoolCancelledWhileWaiting(t *testing.T) {
	p := New(1)
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func(context.Context) error {
		t.Error("fn must not run without a slot")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPoolPropagatesError(t *testing.T) {
	want := errors.New("upstream 502")
	if err := New(3).Do(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestNilAndClampedPool(t *testing.T) {
	var p *Pool
	if err := p.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("nil pool: %v", err)
	}
	if p.Limit() != 0 || p.InFlight() != 0 {
		t.Fatal("nil pool should report zero")
	}
	if New(0).Limit() != 1 {
		t.Fatal("limit 0 should clamp to 1")
	}
}
