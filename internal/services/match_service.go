package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"masterok/internal/auth"
	"masterok/internal/fanout"
	"masterok/internal/fsm"
	"masterok/internal/metrics"
	"masterok/internal/models"
	"masterok/internal/repositories"
)

// MatchService resolves a request to exactly one winning bid.
type MatchService struct {
	DB        *sql.DB
	Requests  *repositories.RequestRepository
	Responses *repositories.ResponseRepository
	Chats     *ChatService
	Events    fanout.Broadcaster
	Log       Logger
}

// SelectProvider accepts one bid, rejects the other pending ones, moves the
// request to in_progress and opens the chat, all in one transaction. The
// request row is locked and its status compared-and-swapped, so of two
// concurrent selections exactly one commits; the other gets
// ErrAlreadyResolved and writes nothing.
func (s *MatchService) SelectProvider(ctx context.Context, actor auth.Identity, requestID, responseID int64) (models.Selection, error) {
	req, err := s.Requests.GetByID(ctx, requestID)
	if err != nil {
		return models.Selection{}, err
	}
	if req.ClientID != actor.ID {
		return models.Selection{}, fmt.Errorf("%w: only the owner can select a provider", models.ErrForbidden)
	}
	resp, err := s.Responses.GetByID(ctx, responseID)
	if errors.Is(err, models.ErrNoRecord) || (err == nil && resp.RequestID != requestID) {
		return models.Selection{}, models.ValidationErrors{"response_id": "does not belong to this request"}
	}
	if err != nil {
		return models.Selection{}, err
	}
	if err := checkSelectable(req.Status); err != nil {
		if errors.Is(err, models.ErrAlreadyResolved) {
			metrics.Selection("lost")
		}
		return models.Selection{}, err
	}
	if !fsm.CanTransitionResponse(resp.Status, models.ResponseStatusAccepted) {
		return models.Selection{}, fmt.Errorf("%w: response %d is %s", models.ErrInvalidState, responseID, resp.Status)
	}

	now := time.Now().UTC()
	var (
		chat    models.Chat
		welcome models.Message
	)
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		locked, err := s.Requests.GetForUpdateTx(ctx, tx, requestID)
		if errors.Is(err, models.ErrNoRecord) {
			return fmt.Errorf("%w: request %d was deleted", models.ErrInvalidState, requestID)
		}
		if err != nil {
			return err
		}
		if err := checkSelectable(locked.Status); err != nil {
			return err
		}
		if err := s.Requests.SelectTx(ctx, tx, requestID, resp.ProviderID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: request %d", models.ErrAlreadyResolved, requestID)
			}
			return err
		}
		if err := s.Responses.AcceptTx(ctx, tx, responseID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: response %d is no longer pending", models.ErrAlreadyResolved, responseID)
			}
			return err
		}
		if _, err := s.Responses.RejectOthersTx(ctx, tx, requestID, responseID, now); err != nil {
			return err
		}
		chat, welcome, err = s.Chats.CreateChatTx(ctx, tx, requestID, req.ClientID, resp.ProviderID)
		if errors.Is(err, models.ErrConflict) {
			return fmt.Errorf("%w: chat for request %d exists", models.ErrAlreadyResolved, requestID)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyResolved) {
			metrics.Selection("lost")
		} else {
			metrics.Selection("failed")
		}
		return models.Selection{}, err
	}
	metrics.Selection("won")

	providerID := resp.ProviderID
	req.Status = models.RequestStatusInProgress
	req.SelectedProviderID = &providerID
	req.SelectedAt = &now
	req.UpdatedAt = now
	resp.Status = models.ResponseStatusAccepted
	resp.UpdatedAt = &now

	s.Events.Publish(fanout.RequestsTopic, fanout.Event{Type: fanout.RequestUpdated, Data: req})
	s.Chats.announce(chat)
	s.Events.Publish(fanout.UserTopic(providerID), fanout.Event{Type: fanout.ChatUpdated, Data: chatUpdate{
		ChatID:      chat.ID,
		UnreadCount: 1,
		LastMessage: &welcome,
	}})
	s.Log.Infof("request %d: client %d selected provider %d, chat %d", requestID, actor.ID, providerID, chat.ID)
	return models.Selection{Request: req, Response: resp, Chat: chat}, nil
}

// checkSelectable tells a request someone already won apart from one that
// can never be resolved.
func checkSelectable(status string) error {
	switch {
	case fsm.CanTransition(status, models.RequestStatusInProgress):
		return nil
	case status == models.RequestStatusInProgress, status == models.RequestStatusCompleted:
		return fmt.Errorf("%w: request is %s", models.ErrAlreadyResolved, status)
	default:
		return fmt.Errorf("%w: request is %s", models.ErrInvalidState, status)
	}
}
