package service

import (
	"context"
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
)

// Forget deletes the record for key and drops its pending challenge. The
// member is treated as unseen afterwards.
func (e *Engine) Forget(ctx context.Context, key models.Key) (outcome models.Outcome, err error) {
	ctx, span := e.startSpan(ctx, "Forget", key)
	defer func(start time.Time) { e.finish(span, "forget", start, outcome) }(time.Now())

	release := e.lanes.lock(key)
	defer release()

	if err := e.delete(ctx, key); err != nil {
		e.collaboratorFailed(ctx, "store", "delete", key, err)
		return models.OutcomeFailed, err
	}
	e.cancelPending(key)
	e.logAudit(ctx, audit.ActionRecordForgotten, key, "actor_id", actorFromContext(ctx))
	return models.OutcomeForgotten, nil
}

// Lookup returns the stored record for key together with its pending flag.
func (e *Engine) Lookup(ctx context.Context, key models.Key) (*models.VerificationRecord, bool, error) {
	record, err := e.get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return record, e.timers.Has(key), nil
}

type actorKey struct{}

// WithActor tags ctx with the operator that triggered an administrative
// operation. It ends up in the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// cancelPending drops the expiry for key, if any. The caller holds the lane.
func (e *Engine) cancelPending(key models.Key) {
	if _, ok := e.timers.Cancel(key); ok {
		e.metrics.SetPending(e.timers.Len())
	}
}

func (e *Engine) delete(ctx context.Context, key models.Key) error {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.store.Delete(ctx, key)
}
