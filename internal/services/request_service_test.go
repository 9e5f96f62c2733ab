package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"masterok/internal/fanout"
	"masterok/internal/models"
)

func TestCreateRequestValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	in := validRequestInput()
	in.Title = "abc"
	in.Type = "spaceship"
	neg := -5.0
	in.Budget = &neg
	in.Photos = []string{"1", "2", "3", "4", "5", "6"}
	_, err := e.requests.CreateRequest(ctx, client, in)
	var v models.ValidationErrors
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	for _, field := range []string{"title", "type", "budget", "photos"} {
		if _, ok := v[field]; !ok {
			t.Fatalf("expected %s in %v", field, v)
		}
	}
	if !errors.Is(err, models.ErrValidation) {
		t.Fatal("ValidationErrors must match ErrValidation")
	}

	if _, err := e.requests.CreateRequest(ctx, providerA, validRequestInput()); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("provider posting a request: expected ErrForbidden, got %v", err)
	}
	if got := e.events.Find(fanout.RequestsTopic, fanout.RequestCreated); len(got) != 0 {
		t.Fatalf("rejected requests must not be announced, got %d", len(got))
	}
}

func TestGetRequestVisibility(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	req := e.postRequest(t, client)

	if _, err := e.requests.GetRequest(ctx, client, req.ID); err != nil {
		t.Fatalf("owner: %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, admin, req.ID); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, providerC, req.ID); err != nil {
		t.Fatalf("provider on open request: %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, otherUser, req.ID); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("other client: expected ErrForbidden, got %v", err)
	}

	a := e.bid(t, providerA, req.ID, 100)
	e.bid(t, providerB, req.ID, 100)
	if _, err := e.match.SelectProvider(ctx, client, req.ID, a.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, providerA, req.ID); err != nil {
		t.Fatalf("selected provider: %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, providerB, req.ID); err != nil {
		t.Fatalf("provider who bid: %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, providerC, req.ID); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("unrelated provider on resolved request: expected ErrForbidden, got %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, client, 4242); !errors.Is(err, models.ErrNoRecord) {
		t.Fatalf("missing request: expected ErrNoRecord, got %v", err)
	}
}

func TestListRequestsScoping(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.postRequest(t, client)
	other := e.postRequest(t, otherUser)
	fridgeIn := validRequestInput()
	fridgeIn.Type = "refrigerator"
	fridgeIn.District = "Bostandyk"
	cheap := 500.0
	fridgeIn.Budget = &cheap
	fridge, err := e.requests.CreateRequest(ctx, client, fridgeIn)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	page, err := e.requests.ListRequests(ctx, client, models.RequestFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || len(page.Data) != 2 {
		t.Fatalf("client should see only own requests, got total=%d", page.Total)
	}
	for _, r := range page.Data {
		if r.ClientID != client.ID {
			t.Fatalf("foreign request %d leaked into client list", r.ID)
		}
	}
	if page.CurrentPage != 1 || page.PerPage != defaultPerPage {
		t.Fatalf("unexpected paging %d/%d", page.CurrentPage, page.PerPage)
	}

	e.bid(t, providerA, other.ID, 100)
	page, err = e.requests.ListRequests(ctx, providerA, models.RequestFilter{})
	if err != nil {
		t.Fatalf("provider list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("provider should see open requests without own bid, got %d", page.Total)
	}
	for _, r := range page.Data {
		if r.ID == other.ID {
			t.Fatal("request already bid on must be hidden from the provider")
		}
	}

	page, err = e.requests.ListRequests(ctx, admin, models.RequestFilter{Type: "refrigerator"})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if page.Total != 1 || page.Data[0].ID != fridge.ID {
		t.Fatalf("type filter: %+v", page)
	}

	maxBudget := 1000.0
	page, err = e.requests.ListRequests(ctx, admin, models.RequestFilter{MaxBudget: &maxBudget})
	if err != nil || page.Total != 1 {
		t.Fatalf("budget filter: total=%d err=%v", page.Total, err)
	}

	page, err = e.requests.ListRequests(ctx, admin, models.RequestFilter{Sort: "budget", Order: "asc"})
	if err != nil {
		t.Fatalf("sorted list: %v", err)
	}
	if len(page.Data) != 3 || page.Data[0].ID != fridge.ID {
		t.Fatalf("cheapest request should come first, got %+v", page.Data)
	}

	page, err = e.requests.ListRequests(ctx, admin, models.RequestFilter{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if page.Total != 3 || len(page.Data) != 1 {
		t.Fatalf("second page: total=%d len=%d", page.Total, len(page.Data))
	}

	page, err = e.requests.ListRequests(ctx, admin, models.RequestFilter{Status: models.RequestStatusSearching})
	if err != nil || page.Total != 1 || page.Data[0].ID != other.ID {
		t.Fatalf("status filter: %+v err=%v", page, err)
	}
}

func TestListRequestsRejectsBadFilter(t *testing.T) {
	e := newTestEnv(t)
	min, max := 500.0, 100.0
	_, err := e.requests.ListRequests(context.Background(), client, models.RequestFilter{
		Status:    "archived",
		Sort:      "title",
		Order:     "sideways",
		MinBudget: &min,
		MaxBudget: &max,
	})
	var v models.ValidationErrors
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	for _, field := range []string{"status", "sort_by", "sort_order", "min_budget"} {
		if _, ok := v[field]; !ok {
			t.Fatalf("expected %s in %v", field, v)
		}
	}
}

func TestUpdateRequest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	req := e.postRequest(t, client)

	title := "Washer leaks and rattles"
	updated, err := e.requests.UpdateRequest(ctx, client, req.ID, models.RequestPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.Description != req.Description {
		t.Fatalf("patch applied wrong: %+v", updated)
	}
	if got := e.events.Find(fanout.RequestsTopic, fanout.RequestUpdated); len(got) != 1 {
		t.Fatalf("expected one request.updated, got %d", len(got))
	}

	short := "no"
	if _, err := e.requests.UpdateRequest(ctx, client, req.ID, models.RequestPatch{Title: &short}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("short title: expected ErrValidation, got %v", err)
	}
	if _, err := e.requests.UpdateRequest(ctx, otherUser, req.ID, models.RequestPatch{Title: &title}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-owner: expected ErrForbidden, got %v", err)
	}

	a := e.bid(t, providerA, req.ID, 100)
	if _, err := e.match.SelectProvider(ctx, client, req.ID, a.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := e.requests.UpdateRequest(ctx, client, req.ID, models.RequestPatch{Title: &title}); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("in-progress request: expected ErrInvalidState, got %v", err)
	}
}

func TestDeleteRequest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	req := e.postRequest(t, client)
	a := e.bid(t, providerA, req.ID, 100)
	if err := e.requests.DeleteRequest(ctx, client, req.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.requests.GetRequest(ctx, client, req.ID); !errors.Is(err, models.ErrNoRecord) {
		t.Fatalf("deleted request should be gone, got %v", err)
	}
	if st := responseStatus(t, e.db, a.ID); st != models.ResponseStatusCancelled {
		t.Fatalf("pending bid on deleted request should be cancelled, got %s", st)
	}

	busy, _, _ := e.selected(t)
	if err := e.requests.DeleteRequest(ctx, client, busy.ID); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("in-progress request: expected ErrInvalidState, got %v", err)
	}
}

func TestCancelRequest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	req := e.postRequest(t, client)
	a := e.bid(t, providerA, req.ID, 100)
	b := e.bid(t, providerB, req.ID, 100)

	if _, err := e.requests.CancelRequest(ctx, otherUser, req.ID); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("non-owner: expected ErrForbidden, got %v", err)
	}
	got, err := e.requests.CancelRequest(ctx, client, req.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != models.RequestStatusCancelled {
		t.Fatalf("status %s", got.Status)
	}
	for _, id := range []int64{a.ID, b.ID} {
		if st := responseStatus(t, e.db, id); st != models.ResponseStatusCancelled {
			t.Fatalf("response %d: expected cancelled, got %s", id, st)
		}
	}
	if _, err := e.requests.CancelRequest(ctx, client, req.ID); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("second cancel: expected ErrInvalidState, got %v", err)
	}
	e.checkInvariants(t, req.ID)
}

func TestCancelAfterSelectionIsRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	req, a, _ := e.selected(t)

	_, err := e.requests.CancelRequest(ctx, client, req.ID)
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	got, err := e.requests.GetRequest(ctx, client, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.RequestStatusInProgress {
		t.Fatalf("status changed to %s", got.Status)
	}
	if st := responseStatus(t, e.db, a.ID); st != models.ResponseStatusAccepted {
		t.Fatalf("winning bid changed to %s", st)
	}
	e.checkInvariants(t, req.ID)
}

func TestStatistics(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	req, _, _ := e.selected(t)
	if _, err := e.requests.CompleteRequest(ctx, client, req.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	e.postRequest(t, client)
	cancelled := e.postRequest(t, client)
	if _, err := e.requests.CancelRequest(ctx, client, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	st, err := e.requests.Statistics(ctx, client)
	if err != nil {
		t.Fatalf("client stats: %v", err)
	}
	if *st.Total != 3 || *st.Active != 1 || *st.Completed != 1 || *st.Cancelled != 1 {
		t.Fatalf("client stats: total=%d active=%d completed=%d cancelled=%d", *st.Total, *st.Active, *st.Completed, *st.Cancelled)
	}
	if st.TotalResponses != nil {
		t.Fatal("client stats must not carry provider fields")
	}

	e.selected(t)
	st, err = e.requests.Statistics(ctx, providerA)
	if err != nil {
		t.Fatalf("provider stats: %v", err)
	}
	if *st.TotalResponses != 2 || *st.AcceptedResponses != 2 || *st.CompletedOrders != 1 || *st.ActiveRequests != 1 {
		t.Fatalf("provider A stats: responses=%d accepted=%d completed=%d active=%d",
			*st.TotalResponses, *st.AcceptedResponses, *st.CompletedOrders, *st.ActiveRequests)
	}
	st, err = e.requests.Statistics(ctx, providerB)
	if err != nil {
		t.Fatalf("provider stats: %v", err)
	}
	if *st.TotalResponses != 2 || *st.AcceptedResponses != 0 || *st.CompletedOrders != 0 {
		t.Fatalf("provider B stats: responses=%d accepted=%d completed=%d",
			*st.TotalResponses, *st.AcceptedResponses, *st.CompletedOrders)
	}
}

func TestValidationMessagesNameFields(t *testing.T) {
	err := validateResponse(models.ResponseInput{Price: -1, Message: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "price") || !strings.Contains(msg, "message") {
		t.Fatalf("error should name the fields, got %q", msg)
	}
}
