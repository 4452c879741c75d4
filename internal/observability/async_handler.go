package observability

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type asyncEntry struct {
	handler slog.Handler
	record  slog.Record
}

type asyncSink struct {
	mu      sync.RWMutex
	closed  bool
	entries chan asyncEntry
	done    chan struct{}
	dropped atomic.Int64
}

// AsyncHandler hands records to a background writer. When the buffer is
// full the record is dropped and counted; Handle never waits on the sink.
type AsyncHandler struct {
	inner slog.Handler
	sink  *asyncSink
}

// NewAsyncHandler wraps inner with a buffered background writer
func NewAsyncHandler(inner slog.Handler, buffer int) *AsyncHandler {
	if buffer < 1 {
		buffer = 1
	}
	sink := &asyncSink{
		entries: make(chan asyncEntry, buffer),
		done:    make(chan struct{}),
	}
	go sink.run()

	return &AsyncHandler{inner: inner, sink: sink}
}

func (s *asyncSink) run() {
	defer close(s.done)
	for e := range s.entries {
		_ = e.handler.Handle(context.Background(), e.record)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(_ context.Context, r slog.Record) error {
	h.sink.mu.RLock()
	defer h.sink.mu.RUnlock()

	if h.sink.closed {
		h.sink.dropped.Add(1)
		return nil
	}

	select {
	case h.sink.entries <- asyncEntry{handler: h.inner, record: r.Clone()}:
	default:
		h.sink.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), sink: h.sink}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), sink: h.sink}
}

// Dropped returns the number of records discarded so far
func (h *AsyncHandler) Dropped() int64 {
	return h.sink.dropped.Load()
}

// Close flushes buffered records and stops the writer. Safe to call twice.
func (h *AsyncHandler) Close() {
	h.sink.mu.Lock()
	if !h.sink.closed {
		h.sink.closed = true
		close(h.sink.entries)
	}
	h.sink.mu.Unlock()

	<-h.sink.done
}
