package models

import "time"

// WelcomeText seeds every chat opened by a selection.
const WelcomeText = "The client has selected you for this job. Let's discuss the details."

// Message is one entry in a chat. System messages are posted on behalf of
// the client when a chat opens and cannot be deleted.
type Message struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_id"`
	SenderID  *int64     `json:"sender_id"`
	System    bool       `json:"is_system"`
	Text      *string    `json:"text,omitempty"`
	ImageRef  *string    `json:"image_ref,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsSystem reports whether the message was authored by the platform.
func (m Message) IsSystem() bool {
	return m.System
}

// MessageInput is the body of a post to a chat.
type MessageInput struct {
	Text     *string `json:"text,omitempty"`
	ImageRef *string `json:"image_ref,omitempty"`
}
