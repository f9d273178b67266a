package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only; in async
// mode a single worker drains a bounded buffer so slow sinks never stall the
// verification engine.
type Publisher struct {
	sink    Sink
	logger  *slog.Logger
	buffer  chan Event
	done    chan struct{}
	closing sync.Once
	dropped atomic.Int64
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer enables async mode with a buffer of the given size.
// Events that do not fit are dropped and counted.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan Event, size)
		}
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		go p.run()
	} else {
		close(p.done)
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil || p.sink == nil {
		return nil
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.buffer == nil {
		return p.sink.Append(ctx, event)
	}
	select {
	case p.buffer <- event:
		return nil
	default:
		p.dropped.Add(1)
		return errors.New("audit buffer full")
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close flushes buffered events and stops the worker.
func (p *Publisher) Close() {
	if p.buffer == nil {
		return
	}
	p.closing.Do(func() {
		close(p.buffer)
	})
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.sink.Append(ctx, event); err != nil {
			p.logger.Warn("failed to append audit event", "action", event.Action, "error", err)
		}
		cancel()
	}
}
