package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects slog.Records for test assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
	delay   time.Duration
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAsyncHandler_ConcurrentWrites(t *testing.T) {
	const goroutines = 50
	const perGoroutine = 100

	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, goroutines*perGoroutine, 4)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "usage recorded", 0))
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := inner.count(); got != goroutines*perGoroutine {
		t.Fatalf("expected %d records, got %d", goroutines*perGoroutine, got)
	}
}

func TestAsyncHandler_ChannelFullDrops(t *testing.T) {
	inner := &recordingHandler{delay: 10 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1, 1)

	for range 50 {
		_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "flood", 0))
	}
	ah.Close()

	if ah.DroppedCount() == 0 {
		t.Fatal("expected some records to be dropped")
	}
}

func TestAsyncHandler_HandleAfterCloseDrops(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10, 1)
	ah.Close()
	ah.Close()

	if err := ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "late", 0)); err != nil {
		t.Fatalf("Handle after Close returned error: %v", err)
	}
	if ah.DroppedCount() != 1 {
		t.Fatalf("expected 1 dropped record, got %d", ah.DroppedCount())
	}
}

func TestAsyncHandler_DerivedHandlersShareWorkers(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 100, 1)
	derived := ah.WithAttrs([]slog.Attr{slog.String("crew_id", "quark")}).WithGroup("g")

	_ = derived.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "derived", 0))
	ah.Close()

	if inner.count() != 1 {
		t.Fatalf("expected derived record to be flushed by parent Close, got %d", inner.count())
	}
}
