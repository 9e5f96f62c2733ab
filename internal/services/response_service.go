package services

import (
	"context"
	"database/sql"
	"fmt"

	"masterok/internal/auth"
	"masterok/internal/fanout"
	"masterok/internal/models"
	"masterok/internal/repositories"
)

// ResponseService accepts provider bids.
type ResponseService struct {
	DB        *sql.DB
	Requests  *repositories.RequestRepository
	Responses *repositories.ResponseRepository
	Events    fanout.Broadcaster
	Log       Logger
}

// SubmitResponse records a provider's bid. The first bid moves the request
// from new to searching; later bids leave it there. The request row is
// locked for the duration so a bid cannot land on a request that is being
// resolved concurrently.
func (s *ResponseService) SubmitResponse(ctx context.Context, actor auth.Identity, requestID int64, in models.ResponseInput) (models.Response, error) {
	if !actor.IsProvider() {
		return models.Response{}, fmt.Errorf("%w: only providers can respond", models.ErrForbidden)
	}
	if err := validateResponse(in); err != nil {
		return models.Response{}, err
	}

	var (
		req     models.Request
		created models.Response
	)
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		req, err = s.Requests.GetForUpdateTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.ClientID == actor.ID {
			return fmt.Errorf("%w: cannot respond to own request", models.ErrForbidden)
		}
		if !req.IsOpen() {
			return fmt.Errorf("%w: request %d is %s", models.ErrConflict, requestID, req.Status)
		}
		exists, err := s.Responses.ExistsTx(ctx, tx, requestID, actor.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: provider %d already responded to request %d", models.ErrConflict, actor.ID, requestID)
		}
		created, err = s.Responses.CreateTx(ctx, tx, models.Response{
			RequestID:     requestID,
			ProviderID:    actor.ID,
			Price:         in.Price,
			Message:       in.Message,
			EstimatedTime: in.EstimatedTime,
		})
		if err != nil {
			return err
		}
		return s.Requests.MarkSearchingTx(ctx, tx, requestID)
	})
	if err != nil {
		return models.Response{}, err
	}

	if req.Status == models.RequestStatusNew {
		req.Status = models.RequestStatusSearching
		s.Events.Publish(fanout.RequestsTopic, fanout.Event{Type: fanout.RequestUpdated, Data: req})
	}
	s.Events.Publish(fanout.UserTopic(req.ClientID), fanout.Event{Type: fanout.ResponseCreated, Data: created})
	s.Log.Infof("provider %d responded to request %d", actor.ID, requestID)
	return created, nil
}

// ListResponses returns the bids on a request. Owners and admins see all of
// them; a provider sees only their own.
func (s *ResponseService) ListResponses(ctx context.Context, actor auth.Identity, requestID int64) ([]models.Response, error) {
	req, err := s.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin() || req.ClientID == actor.ID:
		return s.Responses.ListByRequest(ctx, requestID, 0)
	case actor.IsProvider():
		return s.Responses.ListByRequest(ctx, requestID, actor.ID)
	}
	return nil, fmt.Errorf("%w: request %d", models.ErrForbidden, requestID)
}
