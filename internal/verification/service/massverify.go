package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

// MassVerify marks key verified without a challenge. It makes no gateway
// calls. Applying it to a verified record performs no write.
func (e *Engine) MassVerify(ctx context.Context, key models.Key) (outcome models.Outcome) {
	ctx, span := e.startSpan(ctx, "MassVerify", key)
	defer func(start time.Time) { e.finish(span, "mass_verify", start, outcome) }(time.Now())

	release := e.lanes.lock(key)
	defer release()

	record, err := e.get(ctx, key)
	switch {
	case err == nil && record.Verified:
		e.cancelPending(key)
		return models.OutcomeAlreadyVerified
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		e.collaboratorFailed(ctx, "store", "get", key, err)
	}

	if err := e.setVerified(ctx, key); err != nil {
		e.collaboratorFailed(ctx, "store", "set_verified", key, err)
		return models.OutcomeFailed
	}
	e.cancelPending(key)
	e.metrics.IncMassVerified()
	e.logAudit(ctx, audit.ActionMassVerified, key, "outcome", string(models.OutcomeVerified), "actor_id", actorFromContext(ctx))
	return models.OutcomeVerified
}

// MassVerifyStats summarizes a mass verification run.
type MassVerifyStats struct {
	MessagesProcessed int64         `json:"messages_processed"`
	UsersVerified     int64         `json:"users_verified"`
	ChatsTracked      int           `json:"chats_tracked"`
	Uptime            time.Duration `json:"uptime"`
}

// MassVerifier grandfathers every active sender of a chat. It replaces the
// challenge flow while the bot runs in mass verification mode.
type MassVerifier struct {
	engine  *Engine
	started time.Time

	mu        sync.Mutex
	messages  int64
	verified  int64
	chats     map[int64]struct{}
	lastChats int
}

func NewMassVerifier(engine *Engine) *MassVerifier {
	return &MassVerifier{
		engine:  engine,
		started: engine.now(),
		chats:   make(map[int64]struct{}),
	}
}

// OnIncomingMessage verifies the sender. Only messages with text or a
// caption from real members of group chats count.
func (m *MassVerifier) OnIncomingMessage(ctx context.Context, msg models.IncomingMessage) models.Outcome {
	if !msg.Chat.Type.IsGroup() || msg.Service || !msg.HasContent || msg.From.IsBot || msg.From.IsSystemAccount() {
		return models.OutcomeIgnored
	}

	m.mu.Lock()
	m.messages++
	m.chats[msg.Chat.ID] = struct{}{}
	m.mu.Unlock()

	outcome := m.engine.MassVerify(ctx, msg.Key())
	if outcome == models.OutcomeVerified {
		m.mu.Lock()
		m.verified++
		m.mu.Unlock()
		m.engine.logger.InfoContext(ctx, "member verified by mass verification",
			"chat_id", msg.Chat.ID, "user_id", msg.From.ID, "username", msg.From.DisplayName(strconv.FormatInt(msg.From.ID, 10)))
	}
	return outcome
}

func (m *MassVerifier) Stats() MassVerifyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MassVerifyStats{
		MessagesProcessed: m.messages,
		UsersVerified:     m.verified,
		ChatsTracked:      len(m.chats),
		Uptime:            m.engine.now().Sub(m.started).Truncate(time.Second),
	}
}

// Run logs statistics once after initialDelay and then every interval
// until ctx is done.
func (m *MassVerifier) Run(ctx context.Context, initialDelay, interval time.Duration) error {
	first := time.NewTimer(initialDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-first.C:
		m.logStats(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logStats(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			m.logStats(ctx)
		}
	}
}

func (m *MassVerifier) logStats(ctx context.Context) {
	stats := m.Stats()
	m.mu.Lock()
	newChats := stats.ChatsTracked - m.lastChats
	m.lastChats = stats.ChatsTracked
	m.mu.Unlock()
	m.engine.logger.InfoContext(ctx, "mass verification stats",
		"messages_processed", stats.MessagesProcessed,
		"users_verified", stats.UsersVerified,
		"chats_tracked", stats.ChatsTracked,
		"new_chats", newChats,
		"uptime", stats.Uptime.String(),
	)
}
