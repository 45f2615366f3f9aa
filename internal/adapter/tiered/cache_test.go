package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/tiered"
)

type memCache struct {
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func TestTieredGet(t *testing.T) {
	tests := []struct {
		name     string
		inL1     bool
		inL2     bool
		l2Err    error
		found    bool
		backfill bool
	}{
		{name: "l1 hit", inL1: true, found: true},
		{name: "l2 hit backfills l1", inL2: true, found: true, backfill: true},
		{name: "miss", found: false},
		{name: "l2 down is a miss", l2Err: errors.New("nats: timeout"), found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l1, l2 := newMemCache(), newMemCache()
			if tt.inL1 {
				l1.data["crew:troi"] = []byte("doc")
			}
			if tt.inL2 {
				l2.data["crew:troi"] = []byte("doc")
			}
			l2.err = tt.l2Err

			val, found, err := tiered.New(l1, l2, time.Minute).Get(context.Background(), "crew:troi")
			if err != nil {
				t.Fatal(err)
			}
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if found && string(val) != "doc" {
				t.Errorf("val = %q", val)
			}
			if _, ok := l1.data["crew:troi"]; tt.backfill && !ok {
				t.Error("expected L1 backfill")
			}
		})
	}
}

func TestTieredWithoutL2(t *testing.T) {
	l1 := newMemCache()
	c := tiered.New(l1, nil, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if val, found, err := c.Get(ctx, "k"); err != nil || !found || string(val) != "v" {
		t.Fatalf("Get = %q, %v, %v", val, found, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
}

func TestTieredSetToleratesL2Failure(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.err = errors.New("down")
	if err := tiered.New(l1, l2, time.Minute).Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set = %v, want L2 failure tolerated", err)
	}
	if _, ok := l1.data["k"]; !ok {
		t.Fatal("expected value in L1")
	}
}

func TestTieredDeleteBoth(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l1.data["k"] = []byte("v")
	l2.data["k"] = []byte("v")
	c := tiered.New(l1, l2, time.Minute)

	if err := c.Delete(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["k"]; ok {
		t.Error("L1 still holds k")
	}
	if _, ok := l2.data["k"]; ok {
		t.Error("L2 still holds k")
	}

	l1.data["k"] = []byte("v")
	l2.err = errors.New("down")
	if err := c.Delete(context.Background(), "k"); err == nil {
		t.Error("expected L2 delete failure to be reported")
	}
	if _, ok := l1.data["k"]; ok {
		t.Error("L1 must be cleared even when L2 fails")
	}
}
