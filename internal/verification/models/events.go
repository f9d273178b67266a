package models

// Chat is the normalized chat an event happened in.
type Chat struct {
	ID   int64
	Type ChatType
}

// Member is the normalized sender or joining user.
type Member struct {
	ID        int64
	IsBot     bool
	Username  string
	FirstName string
}

// IsSystemAccount reports whether the member is a platform pseudo-account.
func (m Member) IsSystemAccount() bool {
	return m.ID == ServiceNotificationsUserID || m.ID == GroupAnonymousBotUserID
}

// DisplayName returns the handle used in the challenge greeting.
func (m Member) DisplayName(fallback string) string {
	if m.Username != "" {
		return m.Username
	}
	if m.FirstName != "" {
		return m.FirstName
	}
	return fallback
}

// IncomingMessage is a message posted to a chat.
type IncomingMessage struct {
	Chat      Chat
	From      Member
	MessageID int
	ThreadID  int
	// Service marks membership-change notifications (joined, left, join
	// requests). They never trigger verification.
	Service bool
	// HasContent is true when the message carries text or a caption.
	HasContent bool
}

func (m IncomingMessage) Key() Key {
	return NewKey(m.Chat.ID, m.From.ID)
}

// ChallengeResponse is a press of the challenge button.
type ChallengeResponse struct {
	CallbackID string
	From       Member
	// ChatID and MessageID locate the message that carried the button.
	ChatID    int64
	MessageID int
	Token     string
}

// ChallengeMessage is what the engine asks the notifier to send.
type ChallengeMessage struct {
	ChatID     int64
	ThreadID   int
	ReplyTo    int
	Text       string
	ButtonText string
	Token      string
}
