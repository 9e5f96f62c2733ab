package models

import "time"

const (
	ChatStatusActive = "active"
	ChatStatusClosed = "closed"
)

// Chat is the private thread opened for a matched client and provider.
type Chat struct {
	ID            int64      `json:"id"`
	RequestID     int64      `json:"request_id"`
	ClientID      int64      `json:"client_id"`
	ProviderID    int64      `json:"provider_id"`
	Status        string     `json:"status"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two chat members.
func (c Chat) HasParticipant(userID int64) bool {
	return userID != 0 && (c.ClientID == userID || c.ProviderID == userID)
}

// Counterpart returns the other member of the chat.
func (c Chat) Counterpart(userID int64) int64 {
	if c.ClientID == userID {
		return c.ProviderID
	}
	return c.ClientID
}

// ChatSummary is a chat as listed for one of its participants.
type ChatSummary struct {
	Chat
	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}
