package handlers

import (
	"net/http"

	"masterok/internal/services"
)

// ChatHandler serves chat listings and lifecycle.
type ChatHandler struct {
	Chats *services.ChatService
	Log   Logger
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	chats, err := h.Chats.ListChats(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	chat, err := h.Chats.GetChat(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) Close(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	chat, err := h.Chats.CloseChat(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) TotalUnread(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	n, err := h.Chats.TotalUnread(r.Context(), actor)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}
