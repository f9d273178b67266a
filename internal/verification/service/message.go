package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

// OnIncomingMessage challenges unverified, non-exempt senders in group chats.
func (e *Engine) OnIncomingMessage(ctx context.Context, msg models.IncomingMessage) (outcome models.Outcome) {
	key := msg.Key()
	ctx, span := e.startSpan(ctx, "OnIncomingMessage", key)
	defer func(start time.Time) { e.finish(span, "message", start, outcome) }(time.Now())

	if !msg.Chat.Type.IsGroup() || msg.Service || msg.From.IsBot || msg.From.IsSystemAccount() {
		return models.OutcomeIgnored
	}

	release := e.lanes.lock(key)
	defer release()

	if e.isVerified(ctx, key) {
		return models.OutcomeAlreadyVerified
	}

	role, err := e.getRole(ctx, key)
	if err != nil {
		// Left unchallenged: the next message retries the role lookup.
		e.collaboratorFailed(ctx, "gateway", "get_role", key, err)
		return models.OutcomeFailed
	}
	if role.IsExempt() {
		return models.OutcomeExempt
	}

	if e.timers.Has(key) {
		return models.OutcomePending
	}

	return e.issueChallenge(ctx, msg)
}

// isVerified looks the record up, creating it when absent. Any store error
// counts as not verified.
func (e *Engine) isVerified(ctx context.Context, key models.Key) bool {
	record, err := e.get(ctx, key)
	if err == nil {
		return record.Verified
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		e.collaboratorFailed(ctx, "store", "get", key, err)
		return false
	}
	if err := e.upsert(ctx, models.NewUnverifiedRecord(key, e.now())); err != nil {
		e.collaboratorFailed(ctx, "store", "upsert", key, err)
	}
	return false
}

func (e *Engine) issueChallenge(ctx context.Context, msg models.IncomingMessage) models.Outcome {
	key := msg.Key()
	payload, err := e.codec.Encode(key)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to encode challenge token", "chat_id", key.ChatID, "user_id", key.UserID, "error", err)
		return models.OutcomeFailed
	}

	challenge := models.ChallengeMessage{
		ChatID:     key.ChatID,
		ThreadID:   msg.ThreadID,
		ReplyTo:    msg.MessageID,
		Text:       e.texts.greeting(msg.From.DisplayName(e.texts.FallbackName)),
		ButtonText: e.texts.Button,
		Token:      payload,
	}
	challengeID, err := e.sendChallenge(ctx, challenge)
	if errors.Is(err, sentinel.ErrThreadNotFound) && challenge.ThreadID != 0 {
		e.logger.InfoContext(ctx, "thread not found, sending challenge to main chat",
			"chat_id", key.ChatID, "user_id", key.UserID, "thread_id", challenge.ThreadID)
		challenge.ThreadID = 0
		challengeID, err = e.sendChallenge(ctx, challenge)
	}
	if err != nil {
		e.collaboratorFailed(ctx, "notifier", "send_challenge", key, err)
		return models.OutcomeFailed
	}

	pending := models.PendingChallenge{
		Key:                key,
		OriginalMessageID:  msg.MessageID,
		ChallengeMessageID: challengeID,
		ThreadID:           challenge.ThreadID,
		IssuedAt:           e.now(),
	}
	if err := e.timers.Register(key, e.gracePeriod, pending, e.onChallengeExpired); err != nil {
		// Unreachable while the lane is held; keep the chat clean regardless.
		e.logger.ErrorContext(ctx, "failed to register challenge timer", "chat_id", key.ChatID, "user_id", key.UserID, "error", err)
		if derr := e.deleteMessage(ctx, key.ChatID, challengeID); derr != nil {
			e.collaboratorFailed(ctx, "notifier", "delete_message", key, derr)
		}
		return models.OutcomeFailed
	}
	e.metrics.IncChallengeIssued()
	e.metrics.SetPending(e.timers.Len())
	e.logAudit(ctx, audit.ActionChallengeIssued, key,
		"challenge_message_id", strconv.Itoa(challengeID),
		"thread_id", challenge.ThreadID,
	)
	return models.OutcomeChallenged
}

func (e *Engine) sendChallenge(ctx context.Context, msg models.ChallengeMessage) (int, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.notifier.SendChallenge(ctx, msg)
}
