package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"masterok/internal/auth"
	"masterok/internal/fanout"
	"masterok/internal/metrics"
	"masterok/internal/models"
	"masterok/internal/repositories"
)

const defaultMessagePageSize = 50

// MessageService posts, reads and deletes chat messages.
type MessageService struct {
	DB       *sql.DB
	Chats    *repositories.ChatRepository
	Messages *repositories.MessageRepository
	Events   fanout.Broadcaster
	Log      Logger
	Limiter  *SenderLimiter
}

// PostMessage appends a message. The chat row is held for the transaction
// so created_at never goes backwards relative to earlier messages.
func (s *MessageService) PostMessage(ctx context.Context, actor auth.Identity, chatID int64, in models.MessageInput) (models.Message, error) {
	in, err := normalizeMessage(in)
	if err != nil {
		return models.Message{}, err
	}
	if s.Limiter != nil && !s.Limiter.Allow(actor.ID) {
		return models.Message{}, fmt.Errorf("%w: slow down", models.ErrRateLimited)
	}

	var (
		chat   models.Chat
		msg    models.Message
		unread int
	)
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		chat, err = s.Chats.GetForUpdateTx(ctx, tx, chatID)
		if err != nil {
			return err
		}
		if !chat.HasParticipant(actor.ID) {
			return fmt.Errorf("%w: not a participant of chat %d", models.ErrForbidden, chatID)
		}
		if chat.Status == models.ChatStatusClosed {
			return fmt.Errorf("%w: chat %d is closed", models.ErrInvalidState, chatID)
		}
		now := time.Now().UTC()
		if chat.LastMessageAt != nil && now.Before(*chat.LastMessageAt) {
			now = *chat.LastMessageAt
		}
		sender := actor.ID
		msg, err = s.Messages.InsertTx(ctx, tx, models.Message{
			ChatID:    chatID,
			SenderID:  &sender,
			Text:      in.Text,
			ImageRef:  in.ImageRef,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := s.Chats.TouchTx(ctx, tx, chatID, now); err != nil {
			return err
		}
		unread, err = s.Messages.UnreadCountTx(ctx, tx, chatID, chat.Counterpart(actor.ID))
		return err
	})
	if err != nil {
		return models.Message{}, err
	}

	metrics.MessagePosted()
	s.Events.Publish(fanout.ChatTopic(chatID), fanout.Event{Type: fanout.MessageNew, Data: msg})
	s.Events.Publish(fanout.UserTopic(chat.Counterpart(actor.ID)), fanout.Event{Type: fanout.ChatUpdated, Data: chatUpdate{
		ChatID:      chatID,
		UnreadCount: unread,
		LastMessage: &msg,
	}})
	return msg, nil
}

type chatUpdate struct {
	ChatID      int64           `json:"chat_id"`
	UnreadCount int             `json:"unread_count"`
	LastMessage *models.Message `json:"last_message,omitempty"`
}

// ListMessages returns a page of a chat's messages in insertion order.
func (s *MessageService) ListMessages(ctx context.Context, actor auth.Identity, chatID int64, page, pageSize int) ([]models.Message, error) {
	if _, err := loadParticipantChat(ctx, s.Chats, actor, chatID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPerPage {
		pageSize = defaultMessagePageSize
	}
	return s.Messages.ListByChat(ctx, chatID, page, pageSize)
}

// MarkRead marks everything the other side wrote as read. Calling it again
// with nothing new is a no-op and publishes nothing.
func (s *MessageService) MarkRead(ctx context.Context, actor auth.Identity, chatID int64) (int64, error) {
	if _, err := loadParticipantChat(ctx, s.Chats, actor, chatID); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	n, err := s.Messages.MarkRead(ctx, chatID, actor.ID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Events.Publish(fanout.ChatTopic(chatID), fanout.Event{Type: fanout.MessagesRead, Data: map[string]interface{}{
			"chat_id": chatID, "reader_id": actor.ID, "read_at": now, "count": n,
		}})
		s.Events.Publish(fanout.UserTopic(actor.ID), fanout.Event{Type: fanout.ChatUpdated, Data: chatUpdate{ChatID: chatID}})
	}
	return n, nil
}

// UnreadCount counts what the viewer has not read in a chat.
func (s *MessageService) UnreadCount(ctx context.Context, actor auth.Identity, chatID int64) (int, error) {
	if _, err := loadParticipantChat(ctx, s.Chats, actor, chatID); err != nil {
		return 0, err
	}
	return s.Messages.UnreadCount(ctx, chatID, actor.ID)
}

// DeleteMessage removes a message. Only its sender may do so.
func (s *MessageService) DeleteMessage(ctx context.Context, actor auth.Identity, chatID, messageID int64) error {
	chat, err := loadParticipantChat(ctx, s.Chats, actor, chatID)
	if err != nil {
		return err
	}
	msg, err := s.Messages.GetByID(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if msg.IsSystem() {
		return fmt.Errorf("%w: system messages cannot be deleted", models.ErrForbidden)
	}
	if msg.SenderID == nil || *msg.SenderID != actor.ID {
		return fmt.Errorf("%w: only the sender can delete a message", models.ErrForbidden)
	}
	ok, err := s.Messages.Delete(ctx, chatID, messageID, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNoRecord
	}

	s.Events.Publish(fanout.ChatTopic(chatID), fanout.Event{Type: fanout.MessageDeleted, Data: map[string]int64{
		"chat_id": chatID, "message_id": messageID,
	}})
	other := chat.Counterpart(actor.ID)
	if unread, err := s.Messages.UnreadCount(ctx, chatID, other); err == nil {
		s.Events.Publish(fanout.UserTopic(other), fanout.Event{Type: fanout.ChatUpdated, Data: chatUpdate{ChatID: chatID, UnreadCount: unread}})
	} else {
		s.Log.Errorf("unread recount chat=%d user=%d: %v", chatID, other, err)
	}
	return nil
}

// SenderLimiter applies a token bucket per sender.
type SenderLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	senders map[int64]*rate.Limiter
}

// NewSenderLimiter allows perSecond messages per user with the given burst.
// A non-positive perSecond disables limiting.
func NewSenderLimiter(perSecond float64, burst int) *SenderLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &SenderLimiter{every: rate.Limit(perSecond), burst: burst, senders: make(map[int64]*rate.Limiter)}
}

// Allow reports whether the sender may post now.
func (l *SenderLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	lim, ok := l.senders[userID]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.senders[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
