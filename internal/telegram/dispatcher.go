package telegram

import (
	"context"
	"io"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"gatekeeper/internal/platform/metrics"
	"gatekeeper/internal/verification/models"
	"gatekeeper/internal/verification/token"
)

type MessageHandler interface {
	OnIncomingMessage(ctx context.Context, msg models.IncomingMessage) models.Outcome
}

type JoinHandler interface {
	OnMemberJoined(ctx context.Context, chat models.Chat, user models.Member) models.Outcome
}

type ResponseHandler interface {
	OnChallengeResponse(ctx context.Context, resp models.ChallengeResponse) models.Outcome
}

const defaultMaxInFlight = 64

// Event kinds, also used as metric labels.
const (
	kindMessage  = "message"
	kindJoin     = "join"
	kindCallback = "callback"
	kindIgnored  = "ignored"
)

type event struct {
	kind string
	key  models.Key
	run  func(ctx context.Context) models.Outcome
}

// Dispatcher turns updates into engine events. Events for the same member
// run one at a time in arrival order; events for different members run
// concurrently up to a limit.
type Dispatcher struct {
	messages  MessageHandler
	joins     JoinHandler
	responses ResponseHandler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sem       *semaphore.Weighted

	mu     sync.Mutex
	queues map[models.Key][]event
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithMaxInFlight(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		d.sem = semaphore.NewWeighted(n)
	}
}

// WithJoins routes new member notifications to h.
func WithJoins(h JoinHandler) DispatcherOption {
	return func(d *Dispatcher) {
		d.joins = h
	}
}

// WithResponses routes challenge button presses to h.
func WithResponses(h ResponseHandler) DispatcherOption {
	return func(d *Dispatcher) {
		d.responses = h
	}
}

// NewDispatcher routes ordinary messages to messages. Joins and button
// presses are dropped unless handlers are configured for them.
func NewDispatcher(messages MessageHandler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		messages: messages,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sem:      semaphore.NewWeighted(defaultMaxInFlight),
		queues:   make(map[models.Key][]event),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch queues the events carried by u. It never blocks on event
// handling. Queued events run to completion even after ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, u Update) {
	events := d.normalize(u)
	if len(events) == 0 {
		d.metrics.IncUpdate(kindIgnored)
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		d.metrics.IncUpdate(ev.kind)
		d.enqueue(ctx, ev)
	}
}

// Wait blocks until every queued event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(ctx context.Context, ev event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, active := d.queues[ev.key]
	d.queues[ev.key] = append(q, ev)
	if active {
		d.metrics.AddQueued(1)
		return
	}
	d.wg.Add(1)
	go d.drain(ctx, ev.key)
}

func (d *Dispatcher) drain(ctx context.Context, key models.Key) {
	defer d.wg.Done()
	first := true
	for {
		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		ev := q[0]
		d.queues[key] = q[1:]
		d.mu.Unlock()
		if !first {
			d.metrics.AddQueued(-1)
		}
		first = false

		d.handle(ctx, ev)
	}
}

// handle runs ev once a slot is free. An event that never gets a slot is
// dropped.
func (d *Dispatcher) handle(ctx context.Context, ev event) bool {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.WarnContext(ctx, "event dropped",
			"kind", ev.kind, "chat_id", ev.key.ChatID, "user_id", ev.key.UserID, "error", err)
		return false
	}
	defer d.sem.Release(1)
	outcome := ev.run(ctx)
	d.logger.DebugContext(ctx, "event handled",
		"kind", ev.kind, "chat_id", ev.key.ChatID, "user_id", ev.key.UserID, "outcome", outcome)
	return true
}

func (d *Dispatcher) normalize(u Update) []event {
	switch {
	case u.Message != nil:
		return d.fromMessage(u.Message, u.ThreadID)
	case u.CallbackQuery != nil:
		if ev, ok := d.fromCallback(u.CallbackQuery); ok {
			return []event{ev}
		}
	}
	return nil
}

func (d *Dispatcher) fromMessage(m *tgbotapi.Message, threadID int) []event {
	if m.Chat == nil || m.From == nil {
		return nil
	}
	chat := toChat(m.Chat)

	if len(m.NewChatMembers) > 0 {
		if d.joins == nil {
			return nil
		}
		events := make([]event, 0, len(m.NewChatMembers))
		for _, u := range m.NewChatMembers {
			user := toMember(&u)
			events = append(events, event{
				kind: kindJoin,
				key:  models.NewKey(chat.ID, user.ID),
				run: func(ctx context.Context) models.Outcome {
					return d.joins.OnMemberJoined(ctx, chat, user)
				},
			})
		}
		return events
	}

	msg := models.IncomingMessage{
		Chat:       chat,
		From:       toMember(m.From),
		MessageID:  m.MessageID,
		ThreadID:   threadID,
		Service:    m.LeftChatMember != nil,
		HasContent: m.Text != "" || m.Caption != "",
	}
	return []event{{
		kind: kindMessage,
		key:  msg.Key(),
		run: func(ctx context.Context) models.Outcome {
			return d.messages.OnIncomingMessage(ctx, msg)
		},
	}}
}

// fromCallback keeps only presses of challenge buttons.
func (d *Dispatcher) fromCallback(q *tgbotapi.CallbackQuery) (event, bool) {
	if d.responses == nil || q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return event{}, false
	}
	if !token.IsChallenge(q.Data) {
		return event{}, false
	}
	resp := models.ChallengeResponse{
		CallbackID: q.ID,
		From:       toMember(q.From),
		ChatID:     q.Message.Chat.ID,
		MessageID:  q.Message.MessageID,
		Token:      q.Data,
	}
	return event{
		kind: kindCallback,
		key:  models.NewKey(resp.ChatID, resp.From.ID),
		run: func(ctx context.Context) models.Outcome {
			return d.responses.OnChallengeResponse(ctx, resp)
		},
	}, true
}

func toChat(c *tgbotapi.Chat) models.Chat {
	return models.Chat{ID: c.ID, Type: models.ChatType(c.Type)}
}

func toMember(u *tgbotapi.User) models.Member {
	return models.Member{
		ID:        u.ID,
		IsBot:     u.IsBot,
		Username:  u.UserName,
		FirstName: u.FirstName,
	}
}
