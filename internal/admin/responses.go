package admin

import (
	"time"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
)

// RecordResponse is the HTTP response DTO for one member of one chat.
type RecordResponse struct {
	ChatID   int64     `json:"chat_id"`
	UserID   int64     `json:"user_id"`
	Verified bool      `json:"verified"`
	JoinTime time.Time `json:"join_time"`
	Pending  bool      `json:"pending"`
}

func toRecordResponse(record *models.VerificationRecord, pending bool) *RecordResponse {
	return &RecordResponse{
		ChatID:   record.ChatID,
		UserID:   record.UserID,
		Verified: record.Verified,
		JoinTime: record.JoinTime.UTC(),
		Pending:  pending,
	}
}

// OutcomeResponse reports what an administrative operation did.
type OutcomeResponse struct {
	ChatID  int64  `json:"chat_id"`
	UserID  int64  `json:"user_id"`
	Outcome string `json:"outcome"`
}

// StatsResponse summarizes the bot's state.
type StatsResponse struct {
	Records           int64                `json:"records"`
	VerifiedRecords   int64                `json:"verified_records"`
	PendingChallenges int                  `json:"pending_challenges"`
	MassVerification  *MassVerifyStatsView `json:"mass_verification,omitempty"`
}

type MassVerifyStatsView struct {
	MessagesProcessed int64  `json:"messages_processed"`
	UsersVerified     int64  `json:"users_verified"`
	ChatsTracked      int    `json:"chats_tracked"`
	Uptime            string `json:"uptime"`
}

// EventsResponse wraps a member's audit trail, oldest first.
type EventsResponse struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
}
