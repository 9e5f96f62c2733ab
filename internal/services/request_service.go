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
	"masterok/internal/models"
	"masterok/internal/repositories"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// RequestService owns the request lifecycle outside of provider selection.
type RequestService struct {
	DB        *sql.DB
	Requests  *repositories.RequestRepository
	Responses *repositories.ResponseRepository
	Users     *repositories.UserRepository
	Events    fanout.Broadcaster
	Log       Logger
}

// CreateRequest posts a new job in status new and announces it on the public feed.
func (s *RequestService) CreateRequest(ctx context.Context, actor auth.Identity, in models.RequestInput) (models.Request, error) {
	if !actor.IsClient() && !actor.IsAdmin() {
		return models.Request{}, fmt.Errorf("%w: only clients can post requests", models.ErrForbidden)
	}
	req := models.Request{
		ClientID:    actor.ID,
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Brand:       in.Brand,
		Model:       in.Model,
		Photos:      in.Photos,
		Address:     in.Address,
		District:    in.District,
		Budget:      in.Budget,
	}
	if err := validateRequest(req); err != nil {
		return models.Request{}, err
	}
	created, err := s.Requests.Create(ctx, req)
	if err != nil {
		return models.Request{}, err
	}
	s.Log.Infof("request %d created by client %d", created.ID, actor.ID)
	s.Events.Publish(fanout.RequestsTopic, fanout.Event{Type: fanout.RequestCreated, Data: created})
	return created, nil
}

// GetRequest returns a request the actor may see: admins see everything,
// owners their own, providers open requests and those they bid on or won.
func (s *RequestService) GetRequest(ctx context.Context, actor auth.Identity, id int64) (models.Request, error) {
	req, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return models.Request{}, err
	}
	ok, err := s.canView(ctx, actor, req)
	if err != nil {
		return models.Request{}, err
	}
	if !ok {
		return models.Request{}, fmt.Errorf("%w: request %d", models.ErrForbidden, id)
	}
	return req, nil
}

func (s *RequestService) canView(ctx context.Context, actor auth.Identity, req models.Request) (bool, error) {
	switch {
	case actor.IsAdmin():
		return true, nil
	case req.ClientID == actor.ID:
		return true, nil
	case actor.IsProvider():
		if req.IsOpen() {
			return true, nil
		}
		if req.SelectedProviderID != nil && *req.SelectedProviderID == actor.ID {
			return true, nil
		}
		return s.Responses.HasResponded(ctx, req.ID, actor.ID)
	}
	return false, nil
}

// ListRequests returns one page of requests visible to the actor.
func (s *RequestService) ListRequests(ctx context.Context, actor auth.Identity, f models.RequestFilter) (models.RequestPage, error) {
	v := models.ValidationErrors{}
	if f.Type != "" && !validRequestType(f.Type) {
		v.Add("type", "is not a known appliance type")
	}
	switch f.Status {
	case "", models.RequestStatusNew, models.RequestStatusSearching, models.RequestStatusInProgress,
		models.RequestStatusCompleted, models.RequestStatusCancelled:
	default:
		v.Add("status", "is not a known status")
	}
	switch f.Sort {
	case "":
		f.Sort = "created_at"
	case "created_at", "budget":
	default:
		v.Add("sort_by", "must be created_at or budget")
	}
	switch f.Order {
	case "":
		f.Order = "desc"
	case "asc", "desc":
	default:
		v.Add("sort_order", "must be asc or desc")
	}
	if f.MinBudget != nil && f.MaxBudget != nil && *f.MinBudget > *f.MaxBudget {
		v.Add("min_budget", "must not exceed max_budget")
	}
	if err := v.Err(); err != nil {
		return models.RequestPage{}, err
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}

	f.ClientID, f.OpenForProviderID = 0, 0
	switch {
	case actor.IsAdmin():
	case actor.IsProvider():
		f.OpenForProviderID = actor.ID
	default:
		f.ClientID = actor.ID
	}

	list, total, err := s.Requests.List(ctx, f)
	if err != nil {
		return models.RequestPage{}, err
	}
	return models.RequestPage{Data: list, Total: total, CurrentPage: f.Page, PerPage: f.PerPage}, nil
}

// UpdateRequest edits a request while providers can still bid on it.
func (s *RequestService) UpdateRequest(ctx context.Context, actor auth.Identity, id int64, p models.RequestPatch) (models.Request, error) {
	req, err := s.ownedRequest(ctx, actor, id)
	if err != nil {
		return models.Request{}, err
	}
	if !req.IsOpen() {
		return models.Request{}, fmt.Errorf("%w: request is %s", models.ErrInvalidState, req.Status)
	}
	applyPatch(&req, p)
	if err := validateRequest(req); err != nil {
		return models.Request{}, err
	}
	updated, err := s.Requests.Update(ctx, req)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Request{}, fmt.Errorf("%w: request %d is no longer open", models.ErrInvalidState, id)
	}
	if err != nil {
		return models.Request{}, err
	}
	s.Events.Publish(fanout.RequestsTopic, fanout.Event{Type: fanout.RequestUpdated, Data: updated})
	return updated, nil
}

func applyPatch(req *models.Request, p models.RequestPatch) {
	if p.Title != nil {
		req.Title = *p.Title
	}
	if p.Description != nil {
		req.Description = *p.Description
	}
	if p.Type != nil {
		req.Type = *p.Type
	}
	if p.Brand != nil {
		req.Brand = p.Brand
	}
	if p.Model != nil {
		req.Model = p.Model
	}
	if p.Photos != nil {
		req.Photos = *p.Photos
	}
	if p.Address != nil {
		req.Address = *p.Address
	}
	if p.District != nil {
		req.District = *p.District
	}
	if p.Budget != nil {
		req.Budget = p.Budget
	}
}

// DeleteRequest soft-deletes a request that is not being worked on and
// cancels its pending bids.
func (s *RequestService) DeleteRequest(ctx context.Context, actor auth.Identity, id int64) error {
	req, err := s.ownedRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if req.Status == models.RequestStatusInProgress {
		return fmt.Errorf("%w: request is in progress", models.ErrInvalidState)
	}
	now := time.Now().UTC()
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Requests.SoftDeleteTx(ctx, tx, id, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: request %d changed state", models.ErrInvalidState, id)
			}
			return err
		}
		_, err := s.Responses.CancelPendingTx(ctx, tx, id, now)
		return err
	})
	if err != nil {
		return err
	}
	s.Events.Publish(fanout.RequestsTopic, fanout.Event{Type: fanout.RequestUpdated, Data: map[string]interface{}{"id": id, "deleted": true}})
	return nil
}

// CancelRequest cancels an open request and every pending bid on it.
func (s *RequestService) CancelRequest(ctx context.Context, actor auth.Identity, id int64) (models.Request, error) {
	req, err := s.ownedRequest(ctx, actor, id)
	if err != nil {
		return models.Request{}, err
	}
	if err := fsm.Check(req.Status, models.RequestStatusCancelled); err != nil {
		return models.Request{}, err
	}
	now := time.Now().UTC()
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Requests.CancelTx(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: request %d changed state", models.ErrInvalidState, id)
			}
			return err
		}
		_, err := s.Responses.CancelPendingTx(ctx, tx, id, now)
		return err
	})
	if err != nil {
		return models.Request{}, err
	}
	req.Status = models.RequestStatusCancelled
	req.UpdatedAt = now
	s.Events.Publish(fanout.RequestsTopic, fanout.Event{Type: fanout.RequestUpdated, Data: req})
	return req, nil
}

// CompleteRequest finishes an in-progress job and credits the provider.
func (s *RequestService) CompleteRequest(ctx context.Context, actor auth.Identity, id int64) (models.Request, error) {
	req, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return models.Request{}, err
	}
	isProvider := req.SelectedProviderID != nil && *req.SelectedProviderID == actor.ID
	if req.ClientID != actor.ID && !isProvider && !actor.IsAdmin() {
		return models.Request{}, fmt.Errorf("%w: request %d", models.ErrForbidden, id)
	}
	if err := fsm.Check(req.Status, models.RequestStatusCompleted); err != nil {
		return models.Request{}, err
	}
	now := time.Now().UTC()
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Requests.CompleteTx(ctx, tx, id, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: request %d changed state", models.ErrInvalidState, id)
			}
			return err
		}
		return s.Users.IncrementCompletedTx(ctx, tx, *req.SelectedProviderID)
	})
	if err != nil {
		return models.Request{}, err
	}
	req.Status = models.RequestStatusCompleted
	req.CompletedAt = &now
	req.UpdatedAt = now
	ev := fanout.Event{Type: fanout.RequestUpdated, Data: req}
	s.Events.Publish(fanout.RequestsTopic, ev)
	s.Events.Publish(fanout.UserTopic(req.ClientID), ev)
	s.Events.Publish(fanout.UserTopic(*req.SelectedProviderID), ev)
	s.Log.Infof("request %d completed by user %d", id, actor.ID)
	return req, nil
}

// Statistics summarises the actor's activity.
func (s *RequestService) Statistics(ctx context.Context, actor auth.Identity) (models.RequestStats, error) {
	if actor.IsProvider() {
		total, accepted, err := s.Responses.CountByProvider(ctx, actor.ID)
		if err != nil {
			return models.RequestStats{}, err
		}
		completed, err := s.Users.CompletedOrders(ctx, actor.ID)
		if err != nil {
			return models.RequestStats{}, err
		}
		active, err := s.Requests.CountActiveForProvider(ctx, actor.ID)
		if err != nil {
			return models.RequestStats{}, err
		}
		return models.RequestStats{TotalResponses: &total, AcceptedResponses: &accepted, CompletedOrders: &completed, ActiveRequests: &active}, nil
	}

	counts, err := s.Requests.CountByStatus(ctx, actor.ID)
	if err != nil {
		return models.RequestStats{}, err
	}
	var total int
	for _, n := range counts {
		total += n
	}
	active := counts[models.RequestStatusNew] + counts[models.RequestStatusSearching] + counts[models.RequestStatusInProgress]
	completed := counts[models.RequestStatusCompleted]
	cancelled := counts[models.RequestStatusCancelled]
	return models.RequestStats{Total: &total, Active: &active, Completed: &completed, Cancelled: &cancelled}, nil
}

// ownedRequest loads a request the actor owns or administers.
func (s *RequestService) ownedRequest(ctx context.Context, actor auth.Identity, id int64) (models.Request, error) {
	req, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return models.Request{}, err
	}
	if req.ClientID != actor.ID && !actor.IsAdmin() {
		return models.Request{}, fmt.Errorf("%w: request %d", models.ErrForbidden, id)
	}
	return req, nil
}
