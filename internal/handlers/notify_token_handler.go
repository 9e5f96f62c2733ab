package handlers

import (
	"context"
	"net/http"
	"strings"

	"masterok/internal/models"
)

// TokenStore keeps push device tokens.
type TokenStore interface {
	Add(ctx context.Context, userID int64, token string) error
	Remove(ctx context.Context, userID int64, token string) error
}

// NotifyTokenHandler registers the caller's FCM device tokens.
type NotifyTokenHandler struct {
	Tokens TokenStore
	Log    Logger
}

type tokenBody struct {
	Token string `json:"token"`
}

func (h *NotifyTokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	var body tokenBody
	if !decodeJSON(w, r, &body) {
		return
	}
	body.Token = strings.TrimSpace(body.Token)
	if body.Token == "" || len(body.Token) > 255 {
		writeError(w, h.Log, models.ValidationErrors{"token": "must be 1..255 characters"})
		return
	}
	if err := h.Tokens.Add(r.Context(), actor.ID, body.Token); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotifyTokenHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	token := getParam(r, "token")
	if token == "" {
		http.Error(w, "Invalid token", http.StatusBadRequest)
		return
	}
	if err := h.Tokens.Remove(r.Context(), actor.ID, token); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
