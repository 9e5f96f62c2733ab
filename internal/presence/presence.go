// Package presence keeps a short-lived "user is active" flag per user.
//
// Presence expires passively: every authenticated interaction refreshes the
// flag, and nothing fires when it lapses. Readers may therefore see a user as
// online for up to one TTL after they left.
package presence

import (
	"context"
	"time"
)

// DefaultTTL is how long a touch keeps a user online.
const DefaultTTL = 5 * time.Minute

// Store persists presence records.
type Store interface {
	// Touch sets or refreshes the record and reports whether the user was
	// offline before the call.
	Touch(ctx context.Context, userID int64, ttl time.Duration) (bool, error)
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// Logger provides the logging the tracker needs.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// Tracker exposes presence with store failures degraded to "offline".
type Tracker struct {
	store Store
	ttl   time.Duration
	log   Logger
}

// NewTracker builds a tracker. A non-positive ttl selects DefaultTTL.
func NewTracker(store Store, ttl time.Duration, log Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{store: store, ttl: ttl, log: log}
}

// TTL returns the sliding expiry applied by Touch.
func (t *Tracker) TTL() time.Duration { return t.ttl }

// Touch marks the user online and reports an offline to online transition.
func (t *Tracker) Touch(ctx context.Context, userID int64) bool {
	if userID == 0 {
		return false
	}
	came, err := t.store.Touch(ctx, userID, t.ttl)
	if err != nil {
		if t.log != nil {
			t.log.Errorf("presence touch user=%d: %v", userID, err)
		}
		return false
	}
	return came
}

// IsOnline reports whether the user was touched within the TTL.
func (t *Tracker) IsOnline(ctx context.Context, userID int64) bool {
	online, err := t.store.IsOnline(ctx, userID)
	if err != nil {
		if t.log != nil {
			t.log.Errorf("presence lookup user=%d: %v", userID, err)
		}
		return false
	}
	return online
}
