package models

import (
	"fmt"
	"time"
)

// Telegram pseudo-accounts that post on behalf of the platform. Their
// messages never go through verification.
const (
	ServiceNotificationsUserID int64 = 777000
	GroupAnonymousBotUserID    int64 = 1087968824
)

// Key identifies one member of one chat. Every piece of verification state
// is scoped to a Key.
type Key struct {
	ChatID int64
	UserID int64
}

func NewKey(chatID, userID int64) Key {
	return Key{ChatID: chatID, UserID: userID}
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

// VerificationRecord is the durable ground truth for a member.
type VerificationRecord struct {
	ChatID   int64
	UserID   int64
	Verified bool
	JoinTime time.Time
}

func (r VerificationRecord) Key() Key {
	return NewKey(r.ChatID, r.UserID)
}

// NewUnverifiedRecord builds the record created on first observation of a member.
func NewUnverifiedRecord(key Key, now time.Time) VerificationRecord {
	return VerificationRecord{
		ChatID:   key.ChatID,
		UserID:   key.UserID,
		Verified: false,
		JoinTime: now.Truncate(time.Second),
	}
}

// PendingChallenge is the in-memory state of an outstanding challenge. It is
// lost on restart.
type PendingChallenge struct {
	Key                Key
	OriginalMessageID  int
	ChallengeMessageID int
	ThreadID           int
	IssuedAt           time.Time
}

// Role is a member's status in a chat as reported by the platform.
type Role string

const (
	RoleOwner         Role = "creator"
	RoleAdministrator Role = "administrator"
	RoleMember        Role = "member"
	RoleRestricted    Role = "restricted"
	RoleLeft          Role = "left"
	RoleKicked        Role = "kicked"
)

// IsExempt reports whether the role is never challenged.
func (r Role) IsExempt() bool {
	return r == RoleOwner || r == RoleAdministrator
}

func (r Role) IsOwner() bool {
	return r == RoleOwner
}

// ChatType mirrors the platform's chat kinds.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// IsGroup reports whether verification applies in chats of this type.
func (t ChatType) IsGroup() bool {
	return t == ChatGroup || t == ChatSupergroup
}
