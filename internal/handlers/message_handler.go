package handlers

import (
	"net/http"

	"masterok/internal/models"
	"masterok/internal/services"
)

// MessageHandler serves chat messages and read tracking.
type MessageHandler struct {
	Messages *services.MessageService
	Log      Logger
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	chatID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	msgs, err := h.Messages.ListMessages(r.Context(), actor, chatID, intQuery(r, "page", 1), intQuery(r, "per_page", 0))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	chatID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	var in models.MessageInput
	if !decodeJSON(w, r, &in) {
		return
	}
	msg, err := h.Messages.PostMessage(r.Context(), actor, chatID, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	chatID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	n, err := h.Messages.MarkRead(r.Context(), actor, chatID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

func (h *MessageHandler) Unread(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	chatID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	n, err := h.Messages.UnreadCount(r.Context(), actor, chatID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	chatID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	msgID, ok := idParam(r, "messageId")
	if !ok {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}
	if err := h.Messages.DeleteMessage(r.Context(), actor, chatID, msgID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
