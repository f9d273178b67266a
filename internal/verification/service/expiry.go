package service

import (
	"context"
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
)

// onChallengeExpired runs on the timer goroutine once the grace period has
// passed without a cancel. The registry has already dropped the entry.
func (e *Engine) onChallengeExpired(pending models.PendingChallenge) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	e.metrics.SetPending(e.timers.Len())
	e.expire(context.Background(), pending)
}

func (e *Engine) expire(ctx context.Context, pending models.PendingChallenge) (outcome models.Outcome) {
	key := pending.Key
	ctx, span := e.startSpan(ctx, "OnChallengeExpired", key)
	defer func(start time.Time) { e.finish(span, "expiry", start, outcome) }(time.Now())

	release := e.lanes.lock(key)
	defer release()

	// A response processed while this callback waited for the lane wins.
	if e.isVerified(ctx, key) {
		return models.OutcomeAlreadyVerified
	}

	if err := e.restrict(ctx, key, false); err != nil {
		e.collaboratorFailed(ctx, "gateway", "restrict", key, err)
	}
	if err := e.deleteMessage(ctx, key.ChatID, pending.OriginalMessageID); err != nil {
		e.collaboratorFailed(ctx, "notifier", "delete_original", key, err)
	}
	if err := e.deleteMessage(ctx, key.ChatID, pending.ChallengeMessageID); err != nil {
		e.collaboratorFailed(ctx, "notifier", "delete_challenge", key, err)
	}

	e.metrics.IncChallengeExpired()
	e.logAudit(ctx, audit.ActionChallengeExpired, key, "outcome", string(models.OutcomeRestricted))
	return models.OutcomeRestricted
}
