package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrSinkClosed is returned by AsyncSink.Append after Close.
var ErrSinkClosed = errors.New("event sink closed")

// MemorySink keeps envelopes in memory. Safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	events []Envelope
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append implements EventSink.
func (m *MemorySink) Append(_ context.Context, envelope Envelope) error {
	m.mu.Lock()
	m.events = append(m.events, envelope)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything appended so far.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns the envelopes of one event type in append order.
func (m *MemorySink) ByType(eventType string) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Envelope
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// LogSink writes each envelope as one structured log line.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink logs envelopes at level. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events"), level: level}
}

// Append implements EventSink.
func (l *LogSink) Append(ctx context.Context, envelope Envelope) error {
	l.logger.Log(ctx, l.level, "event",
		"event_id", envelope.ID,
		"event_type", envelope.Type,
		"source", envelope.Source,
		"payload", string(envelope.Payload))
	return nil
}

// MultiSink fans an envelope out to several sinks and joins their errors.
type MultiSink []EventSink

// Append implements EventSink.
func (m MultiSink) Append(ctx context.Context, envelope Envelope) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, envelope); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncSink decouples producers from a slow sink through a bounded buffer.
// When the buffer is full the envelope is dropped and counted.
type AsyncSink struct {
	next    EventSink
	ch      chan Envelope
	done    chan struct{}
	logger  *slog.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewAsyncSink starts a goroutine delivering envelopes to next.
// Call Close to flush and stop it.
func NewAsyncSink(next EventSink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 1
	}
	a := &AsyncSink{
		next:   next,
		ch:     make(chan Envelope, buffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "events"),
	}
	go a.run()
	return a
}

func (a *AsyncSink) run() {
	defer close(a.done)
	for env := range a.ch {
		// Detached from the producer's context, which may already be done.
		if err := a.next.Append(context.Background(), env); err != nil {
			a.logger.Warn("event delivery failed", "event_type", env.Type, "error", err)
		}
	}
}

// Append enqueues without blocking.
func (a *AsyncSink) Append(_ context.Context, envelope Envelope) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrSinkClosed
	}
	select {
	case a.ch <- envelope:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Dropped reports how many envelopes were discarded because the buffer was full.
func (a *AsyncSink) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting envelopes and waits until the buffer is drained or
// ctx is done.
func (a *AsyncSink) Close(ctx context.Context) error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
