package handlers

import (
	"context"
	"net/http"
	"time"
)

// OnlineChecker is the read side of the presence tracker.
type OnlineChecker interface {
	IsOnline(ctx context.Context, userID int64) bool
}

// LastSeenReader returns the recorded last activity of a user.
type LastSeenReader interface {
	LastSeen(ctx context.Context, userID int64) (*time.Time, error)
}

// PresenceHandler answers "is this user online".
type PresenceHandler struct {
	Presence OnlineChecker
	Users    LastSeenReader
	Log      Logger
}

type presenceBody struct {
	UserID     int64      `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}
	userID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	body := presenceBody{UserID: userID, Online: h.Presence.IsOnline(r.Context(), userID)}
	if h.Users != nil {
		seen, err := h.Users.LastSeen(r.Context(), userID)
		if err != nil {
			h.Log.Errorf("last seen user=%d: %v", userID, err)
		}
		body.LastSeenAt = seen
	}
	writeJSON(w, http.StatusOK, body)
}
