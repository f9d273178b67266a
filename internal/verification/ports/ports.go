// Package ports defines the collaborators of the verification engine.
// Adapters return errors wrapping pkg/platform/sentinel values so the engine
// can apply its failure policy without knowing the transport.
package ports

//go:generate mockgen -source=ports.go -destination=../service/mocks/mocks.go -package=mocks Store,MembershipGateway,Notifier,AuditPublisher

import (
	"context"
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
)

// Store persists verification records.
type Store interface {
	// Get returns the record for key, or sentinel.ErrNotFound.
	Get(ctx context.Context, key models.Key) (*models.VerificationRecord, error)

	// Upsert creates or replaces the record.
	Upsert(ctx context.Context, record models.VerificationRecord) error

	// SetVerified marks the record verified, creating it with joinTime=at
	// when absent.
	SetVerified(ctx context.Context, key models.Key, at time.Time) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, key models.Key) error
}

// MembershipGateway reads and changes a member's permissions in a chat.
type MembershipGateway interface {
	GetRole(ctx context.Context, chatID, userID int64) (models.Role, error)

	// Restrict denies (allowSend=false) or restores (allowSend=true) sending
	// messages, media, polls and other content.
	Restrict(ctx context.Context, chatID, userID int64, allowSend bool) error
}

// Notifier talks to the chat.
type Notifier interface {
	// SendChallenge posts the challenge and returns its message id. It fails
	// with sentinel.ErrThreadNotFound when msg.ThreadID no longer exists.
	SendChallenge(ctx context.Context, msg models.ChallengeMessage) (int, error)

	AnswerChallenge(ctx context.Context, callbackID, text string) error

	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// AuditPublisher emits audit events for verification state transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
