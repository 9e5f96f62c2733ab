package fsm

import (
	"errors"
	"testing"

	"masterok/internal/models"
)

func TestCanTransition(t *testing.T) {
	if !CanTransition(models.RequestStatusNew, models.RequestStatusSearching) {
		t.Fatal("expected new -> searching to be allowed")
	}
	if !CanTransition(models.RequestStatusSearching, models.RequestStatusInProgress) {
		t.Fatal("expected searching -> in_progress to be allowed")
	}
	if !CanTransition(models.RequestStatusInProgress, models.RequestStatusCompleted) {
		t.Fatal("expected in_progress -> completed to be allowed")
	}
	if CanTransition(models.RequestStatusInProgress, models.RequestStatusCancelled) {
		t.Fatal("in_progress -> cancelled must be refused")
	}
	if CanTransition(models.RequestStatusSearching, models.RequestStatusNew) {
		t.Fatal("searching -> new must be refused")
	}
	if CanTransition("bogus", models.RequestStatusNew) {
		t.Fatal("unknown status must not transition")
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []string{
		models.RequestStatusNew,
		models.RequestStatusSearching,
		models.RequestStatusInProgress,
		models.RequestStatusCompleted,
		models.RequestStatusCancelled,
	}
	for _, term := range []string{models.RequestStatusCompleted, models.RequestStatusCancelled} {
		for _, to := range all {
			if CanTransition(term, to) {
				t.Fatalf("unexpected transition %s -> %s", term, to)
			}
		}
	}
}

func TestSources(t *testing.T) {
	got := Sources(models.RequestStatusInProgress)
	if len(got) != 2 || got[0] != models.RequestStatusNew || got[1] != models.RequestStatusSearching {
		t.Fatalf("unexpected sources for in_progress: %v", got)
	}
	got = Sources(models.RequestStatusCompleted)
	if len(got) != 1 || got[0] != models.RequestStatusInProgress {
		t.Fatalf("unexpected sources for completed: %v", got)
	}
}

func TestCheck(t *testing.T) {
	if err := Check(models.RequestStatusNew, models.RequestStatusCancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Check(models.RequestStatusInProgress, models.RequestStatusCancelled)
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestResponseTransitions(t *testing.T) {
	if !CanTransitionResponse(models.ResponseStatusPending, models.ResponseStatusAccepted) {
		t.Fatal("expected pending -> accepted to be allowed")
	}
	if CanTransitionResponse(models.ResponseStatusRejected, models.ResponseStatusAccepted) {
		t.Fatal("rejected bids cannot be accepted")
	}
}
