package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a logging pipeline.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncCore is shared by an AsyncHandler and every handler derived from it
// through WithAttrs/WithGroup.
type asyncCore struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan asyncRecord
	wg      sync.WaitGroup
	dropped atomic.Int64
}

type asyncRecord struct {
	inner slog.Handler
	rec   slog.Record
}

// AsyncHandler hands records to a pool of workers over a buffered channel so
// request goroutines never block on log I/O. Records are dropped (and counted)
// when the buffer is full or after Close.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler creates an AsyncHandler with the given buffer size and worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	core := &asyncCore{ch: make(chan asyncRecord, chanSize)}
	for range max(workers, 1) {
		core.wg.Add(1)
		go core.drain()
	}
	return &AsyncHandler{inner: inner, core: core}
}

func (c *asyncCore) drain() {
	defer c.wg.Done()
	for r := range c.ch {
		_ = r.inner.Handle(context.Background(), r.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.core.mu.RLock()
	defer h.core.mu.RUnlock()
	if h.core.closed {
		h.core.dropped.Add(1)
		return nil
	}
	select {
	case h.core.ch <- asyncRecord{inner: h.inner, rec: rec.Clone()}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the same workers.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup returns a handler sharing the same workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops accepting records and waits for the buffer to drain.
// Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.core.mu.Lock()
	if h.core.closed {
		h.core.mu.Unlock()
		return
	}
	h.core.closed = true
	close(h.core.ch)
	h.core.mu.Unlock()
	h.core.wg.Wait()
}
