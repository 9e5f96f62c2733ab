package fsm

import (
	"fmt"

	"masterok/internal/models"
)

var requestTransitions = map[string]map[string]struct{}{
	models.RequestStatusNew: {
		models.RequestStatusSearching:  {},
		models.RequestStatusInProgress: {},
		models.RequestStatusCancelled:  {},
	},
	models.RequestStatusSearching: {
		models.RequestStatusInProgress: {},
		models.RequestStatusCancelled:  {},
	},
	models.RequestStatusInProgress: {
		models.RequestStatusCompleted: {},
	},
	models.RequestStatusCompleted: {},
	models.RequestStatusCancelled: {},
}

var responseTransitions = map[string]map[string]struct{}{
	models.ResponseStatusPending: {
		models.ResponseStatusAccepted:  {},
		models.ResponseStatusRejected:  {},
		models.ResponseStatusCancelled: {},
	},
	models.ResponseStatusAccepted:  {},
	models.ResponseStatusRejected:  {},
	models.ResponseStatusCancelled: {},
}

// CanTransition returns whether a request can move from the current status to the target status.
func CanTransition(from, to string) bool {
	return allowed(requestTransitions, from, to)
}

// CanTransitionResponse is CanTransition for bids.
func CanTransitionResponse(from, to string) bool {
	return allowed(responseTransitions, from, to)
}

// Sources lists every request status that may transition into to.
// The slice is ordered so that generated SQL is stable.
func Sources(to string) []string {
	var out []string
	for _, from := range []string{
		models.RequestStatusNew,
		models.RequestStatusSearching,
		models.RequestStatusInProgress,
		models.RequestStatusCompleted,
		models.RequestStatusCancelled,
	} {
		if _, ok := requestTransitions[from][to]; ok {
			out = append(out, from)
		}
	}
	return out
}

// Check returns an ErrInvalidState error when the request transition is not allowed.
func Check(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: request cannot move from %s to %s", models.ErrInvalidState, from, to)
	}
	return nil
}

func allowed(table map[string]map[string]struct{}, from, to string) bool {
	next, ok := table[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
