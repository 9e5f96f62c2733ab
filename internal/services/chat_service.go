package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"masterok/internal/auth"
	"masterok/internal/fanout"
	"masterok/internal/models"
	"masterok/internal/repositories"
)

// ChatService owns chat lifecycle and unread accounting.
type ChatService struct {
	DB       *sql.DB
	Chats    *repositories.ChatRepository
	Messages *repositories.MessageRepository
	Events   fanout.Broadcaster
	Log      Logger
}

// CreateChat opens the chat of a request and seeds the welcome message.
// A second chat for the same request fails with ErrConflict.
func (s *ChatService) CreateChat(ctx context.Context, requestID, clientID, providerID int64) (models.Chat, error) {
	var chat models.Chat
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		chat, _, err = s.CreateChatTx(ctx, tx, requestID, clientID, providerID)
		return err
	})
	if err != nil {
		return models.Chat{}, err
	}
	s.announce(chat)
	return chat, nil
}

// CreateChatTx is CreateChat inside the caller's transaction. The caller
// publishes once the transaction commits.
func (s *ChatService) CreateChatTx(ctx context.Context, tx *sql.Tx, requestID, clientID, providerID int64) (models.Chat, models.Message, error) {
	if clientID == providerID {
		return models.Chat{}, models.Message{}, fmt.Errorf("%w: chat needs two distinct participants", models.ErrValidation)
	}
	now := time.Now().UTC()
	chat, err := s.Chats.CreateTx(ctx, tx, models.Chat{
		RequestID:     requestID,
		ClientID:      clientID,
		ProviderID:    providerID,
		LastMessageAt: &now,
	})
	if err != nil {
		return models.Chat{}, models.Message{}, err
	}
	text := models.WelcomeText
	sender := clientID
	welcome, err := s.Messages.InsertTx(ctx, tx, models.Message{ChatID: chat.ID, SenderID: &sender, System: true, Text: &text, CreatedAt: now})
	if err != nil {
		return models.Chat{}, models.Message{}, err
	}
	return chat, welcome, nil
}

// announce tells both participants about a new chat.
func (s *ChatService) announce(chat models.Chat) {
	ev := fanout.Event{Type: fanout.ChatCreated, Data: chat}
	s.Events.Publish(fanout.UserTopic(chat.ClientID), ev)
	s.Events.Publish(fanout.UserTopic(chat.ProviderID), ev)
}

// GetChat returns a chat the actor takes part in.
func (s *ChatService) GetChat(ctx context.Context, actor auth.Identity, chatID int64) (models.ChatSummary, error) {
	chat, err := loadParticipantChat(ctx, s.Chats, actor, chatID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	sum := models.ChatSummary{Chat: chat}
	sum.UnreadCount, err = s.Messages.UnreadCount(ctx, chatID, actor.ID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	if err := s.attachLast(ctx, &sum); err != nil {
		return models.ChatSummary{}, err
	}
	return sum, nil
}

// ListChats returns the actor's chats, most recently active first.
func (s *ChatService) ListChats(ctx context.Context, actor auth.Identity, status string) ([]models.ChatSummary, error) {
	switch status {
	case "", models.ChatStatusActive, models.ChatStatusClosed:
	default:
		return nil, models.ValidationErrors{"status": "must be active or closed"}
	}
	list, err := s.Chats.ListForUser(ctx, actor.ID, status)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := s.attachLast(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *ChatService) attachLast(ctx context.Context, sum *models.ChatSummary) error {
	last, err := s.Messages.Last(ctx, sum.ID)
	if errors.Is(err, models.ErrNoRecord) {
		return nil
	}
	if err != nil {
		return err
	}
	sum.LastMessage = &last
	return nil
}

// TotalUnread counts unread messages across all the actor's chats.
func (s *ChatService) TotalUnread(ctx context.Context, actor auth.Identity) (int, error) {
	return s.Messages.TotalUnread(ctx, actor.ID)
}

// CloseChat closes a chat for good. Closing a closed chat is a no-op.
func (s *ChatService) CloseChat(ctx context.Context, actor auth.Identity, chatID int64) (models.Chat, error) {
	chat, err := loadParticipantChat(ctx, s.Chats, actor, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	changed, err := s.Chats.Close(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	chat.Status = models.ChatStatusClosed
	if changed {
		ev := fanout.Event{Type: fanout.ChatUpdated, Data: map[string]interface{}{"chat_id": chatID, "status": chat.Status}}
		s.Events.Publish(fanout.UserTopic(chat.ClientID), ev)
		s.Events.Publish(fanout.UserTopic(chat.ProviderID), ev)
		s.Log.Infof("chat %d closed by user %d", chatID, actor.ID)
	}
	return chat, nil
}

// loadParticipantChat loads a chat and checks the actor is one of its two members.
func loadParticipantChat(ctx context.Context, chats *repositories.ChatRepository, actor auth.Identity, chatID int64) (models.Chat, error) {
	chat, err := chats.GetByID(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(actor.ID) {
		return models.Chat{}, fmt.Errorf("%w: not a participant of chat %d", models.ErrForbidden, chatID)
	}
	return chat, nil
}
