package service

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

// OnMemberJoined records a new member as unverified and mutes them until
// they pass a challenge. A member who is already verified is left alone.
func (e *Engine) OnMemberJoined(ctx context.Context, chat models.Chat, user models.Member) (outcome models.Outcome) {
	key := models.NewKey(chat.ID, user.ID)
	ctx, span := e.startSpan(ctx, "OnMemberJoined", key)
	defer func(start time.Time) { e.finish(span, "join", start, outcome) }(time.Now())

	if user.IsBot || !chat.Type.IsGroup() {
		return models.OutcomeIgnored
	}

	release := e.lanes.lock(key)
	defer release()

	record, err := e.get(ctx, key)
	switch {
	case err == nil && record.Verified:
		return models.OutcomeAlreadyVerified
	case err == nil || errors.Is(err, sentinel.ErrNotFound):
		if err := e.upsert(ctx, models.NewUnverifiedRecord(key, e.now())); err != nil {
			e.collaboratorFailed(ctx, "store", "upsert", key, err)
		}
	default:
		// The stored record is unknown and may be verified; never overwrite it.
		e.collaboratorFailed(ctx, "store", "get", key, err)
	}
	e.logAudit(ctx, audit.ActionMemberJoined, key, "username", user.Username)

	role, err := e.getRole(ctx, key)
	if err != nil {
		e.collaboratorFailed(ctx, "gateway", "get_role", key, err)
		return models.OutcomeTracked
	}
	if role.IsOwner() {
		return models.OutcomeTracked
	}
	if err := e.restrict(ctx, key, false); err != nil {
		e.collaboratorFailed(ctx, "gateway", "restrict", key, err)
		return models.OutcomeTracked
	}
	return models.OutcomeRestricted
}

func (e *Engine) get(ctx context.Context, key models.Key) (*models.VerificationRecord, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.store.Get(ctx, key)
}

func (e *Engine) upsert(ctx context.Context, record models.VerificationRecord) error {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.store.Upsert(ctx, record)
}

func (e *Engine) setVerified(ctx context.Context, key models.Key) error {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.store.SetVerified(ctx, key, e.now())
}

func (e *Engine) getRole(ctx context.Context, key models.Key) (models.Role, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.gateway.GetRole(ctx, key.ChatID, key.UserID)
}

func (e *Engine) restrict(ctx context.Context, key models.Key, allowSend bool) error {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.gateway.Restrict(ctx, key.ChatID, key.UserID, allowSend)
}

func (e *Engine) deleteMessage(ctx context.Context, chatID int64, messageID int) error {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.notifier.DeleteMessage(ctx, chatID, messageID)
}

func (e *Engine) answer(ctx context.Context, key models.Key, callbackID, text string) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	if err := e.notifier.AnswerChallenge(ctx, callbackID, text); err != nil {
		e.collaboratorFailed(ctx, "notifier", "answer", key, err)
	}
}
