package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted from the verification engine to capture state transitions.
// Keep it transport-agnostic so sinks can fan out.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	Outcome   string    `json:"outcome,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	// ActorID is set when someone other than the subject caused the event,
	// e.g. an operator using the admin API.
	ActorID string `json:"actor_id,omitempty"`
}

type Action string

const (
	ActionMemberJoined      Action = "member_joined"
	ActionChallengeIssued   Action = "challenge_issued"
	ActionChallengePassed   Action = "challenge_passed"
	ActionChallengeRejected Action = "challenge_rejected"
	ActionChallengeExpired  Action = "challenge_expired"
	ActionMassVerified      Action = "mass_verified"
	ActionRecordForgotten   Action = "record_forgotten"
)
