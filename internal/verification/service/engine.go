package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/metrics"
	"gatekeeper/internal/verification/models"
	"gatekeeper/internal/verification/ports"
	"gatekeeper/internal/verification/timers"
	"gatekeeper/internal/verification/token"
	"gatekeeper/pkg/attrs"
	"gatekeeper/pkg/platform/sentinel"
)

const (
	DefaultGracePeriod = 15 * time.Second
	DefaultCallTimeout = 10 * time.Second
)

// Engine owns the verification state machine. Every operation on a
// (chat, user) key runs inside that key's lane, timer expiry included, so a
// key's record, pending challenge and remote side effects are never
// interleaved. Different keys proceed in parallel.
type Engine struct {
	store    ports.Store
	gateway  ports.MembershipGateway
	notifier ports.Notifier

	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	codec  *token.Codec
	texts  Texts
	timers *timers.Registry
	lanes  *lanes

	now         func() time.Time
	afterFunc   timers.AfterFunc
	gracePeriod time.Duration
	callTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(e *Engine) {
		e.auditPublisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithClock sets the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithAfterFunc sets how expiry timers are scheduled.
func WithAfterFunc(f timers.AfterFunc) Option {
	return func(e *Engine) {
		e.afterFunc = f
	}
}

func WithGracePeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.gracePeriod = d
		}
	}
}

// WithCallTimeout bounds each store, gateway and notifier call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

func WithTexts(texts Texts) Option {
	return func(e *Engine) {
		e.texts = texts
	}
}

func WithTokenCodec(codec *token.Codec) Option {
	return func(e *Engine) {
		e.codec = codec
	}
}

// New constructs an Engine.
func New(store ports.Store, gateway ports.MembershipGateway, notifier ports.Notifier, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if gateway == nil {
		return nil, errors.New("membership gateway is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}

	e := &Engine{
		store:       store,
		gateway:     gateway,
		notifier:    notifier,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		texts:       DefaultTexts(),
		lanes:       newLanes(),
		now:         time.Now,
		gracePeriod: DefaultGracePeriod,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("gatekeeper/verification")
	}
	if e.codec == nil {
		secret, err := token.RandomSecret()
		if err != nil {
			return nil, err
		}
		if e.codec, err = token.NewCodec(secret); err != nil {
			return nil, err
		}
	}
	e.timers = timers.New(e.afterFunc)
	return e, nil
}

// Close stops every pending timer and waits for running expiry callbacks.
// Challenges still pending are dropped; their members stay unverified and
// will be challenged again on their next message.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	dropped := e.timers.StopAll()
	e.metrics.SetPending(0)
	if len(dropped) > 0 {
		e.logger.Warn("dropping pending challenges on shutdown", "count", len(dropped))
	}
	e.inflight.Wait()
}

// HasPending reports whether key has an outstanding challenge.
func (e *Engine) HasPending(key models.Key) bool {
	return e.timers.Has(key)
}

// PendingCount returns the number of outstanding challenges.
func (e *Engine) PendingCount() int {
	return e.timers.Len()
}

func (e *Engine) startSpan(ctx context.Context, op string, key models.Key) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "verification."+op, trace.WithAttributes(
		attribute.Int64("chat_id", key.ChatID),
		attribute.Int64("user_id", key.UserID),
	))
}

// finish records the outcome of one operation.
func (e *Engine) finish(span trace.Span, op string, start time.Time, outcome models.Outcome) {
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	span.End()
	e.metrics.RecordOutcome(op, string(outcome), time.Since(start))
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.callTimeout)
}

// collaboratorFailed logs and counts a failed remote call. It never
// propagates: no single failure stops the engine.
func (e *Engine) collaboratorFailed(ctx context.Context, collaborator, op string, key models.Key, err error) {
	kind := sentinel.Kind(err)
	e.metrics.IncCollaboratorError(collaborator, op, kind)
	trace.SpanFromContext(ctx).RecordError(err)
	e.logger.WarnContext(ctx, "collaborator call failed",
		"collaborator", collaborator,
		"op", op,
		"kind", kind,
		"chat_id", key.ChatID,
		"user_id", key.UserID,
		"error", err,
	)
}

func (e *Engine) logAudit(ctx context.Context, action audit.Action, key models.Key, attributes ...any) {
	attributes = append(attributes, "chat_id", key.ChatID, "user_id", key.UserID)
	args := append(attributes, "event", string(action), "log_type", "audit")
	if e.logger != nil {
		e.logger.InfoContext(ctx, string(action), args...)
	}
	if e.auditPublisher == nil {
		return
	}
	err := e.auditPublisher.Emit(ctx, audit.Event{
		Action:  string(action),
		ChatID:  key.ChatID,
		UserID:  key.UserID,
		Outcome: attrs.String(attributes, "outcome"),
		Reason:  attrs.String(attributes, "reason"),
		ActorID: attrs.String(attributes, "actor_id"),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "failed to emit audit event", "event", string(action), "error", err)
	}
}
