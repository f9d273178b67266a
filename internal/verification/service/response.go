package service

import (
	"context"
	"strconv"
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
)

// OnChallengeResponse handles a press of the challenge button.
func (e *Engine) OnChallengeResponse(ctx context.Context, resp models.ChallengeResponse) (outcome models.Outcome) {
	responder := models.NewKey(resp.ChatID, resp.From.ID)
	ctx, span := e.startSpan(ctx, "OnChallengeResponse", responder)
	defer func(start time.Time) { e.finish(span, "response", start, outcome) }(time.Now())

	key, err := e.codec.Decode(resp.Token)
	if err != nil {
		e.logger.InfoContext(ctx, "rejected challenge token", "chat_id", resp.ChatID, "user_id", resp.From.ID, "error", err)
		return e.reject(ctx, resp, responder, "invalid_token")
	}
	if key.UserID != resp.From.ID || key.ChatID != resp.ChatID {
		return e.reject(ctx, resp, key, "foreign_responder")
	}

	release := e.lanes.lock(key)
	defer release()

	// Written before the timer is cancelled: if the write fails the member
	// keeps the running timer and can press again.
	if err := e.setVerified(ctx, key); err != nil {
		e.collaboratorFailed(ctx, "store", "set_verified", key, err)
		e.answer(ctx, key, resp.CallbackID, e.texts.Retry)
		return models.OutcomeFailed
	}
	e.cancelPending(key)
	e.metrics.IncChallengePassed()
	e.logAudit(ctx, audit.ActionChallengePassed, key, "outcome", string(models.OutcomePassed))

	e.answer(ctx, key, resp.CallbackID, e.texts.Passed)
	if err := e.deleteMessage(ctx, resp.ChatID, resp.MessageID); err != nil {
		e.collaboratorFailed(ctx, "notifier", "delete_message", key, err)
	}

	role, err := e.getRole(ctx, key)
	if err != nil {
		e.collaboratorFailed(ctx, "gateway", "get_role", key, err)
	}
	if err == nil && role.IsOwner() {
		return models.OutcomePassed
	}
	if err := e.restrict(ctx, key, true); err != nil {
		e.collaboratorFailed(ctx, "gateway", "unrestrict", key, err)
	}
	return models.OutcomePassed
}

func (e *Engine) reject(ctx context.Context, resp models.ChallengeResponse, key models.Key, reason string) models.Outcome {
	e.metrics.IncChallengeRejected()
	e.logAudit(ctx, audit.ActionChallengeRejected, key,
		"reason", reason,
		"actor_id", strconv.FormatInt(resp.From.ID, 10),
	)
	e.answer(ctx, key, resp.CallbackID, e.texts.NotYourButton)
	return models.OutcomeRejected
}
