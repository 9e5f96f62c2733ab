package fanout

import (
	"context"
	"time"

	"firebase.google.com/go/messaging"

	"masterok/internal/metrics"
)

// Sender delivers one push message. *messaging.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// TokenSource lists the device tokens of a user.
type TokenSource interface {
	Tokens(ctx context.Context, userID int64) ([]string, error)
}

// TokenPruner forgets tokens the push service rejected as unregistered.
type TokenPruner interface {
	RemoveToken(ctx context.Context, token string) error
}

var pushTitles = map[string]string{
	ResponseCreated: "New response to your request",
	ChatCreated:     "You were selected for a job",
	ChatUpdated:     "New message",
}

// PushBroadcaster forwards user-topic events to mobile devices through FCM.
// Only the event types in pushTitles are pushed. Publish performs network
// calls; wrap it in Async.
type PushBroadcaster struct {
	sender  Sender
	tokens  TokenSource
	pruner  TokenPruner
	logger  Logger
	timeout time.Duration
}

// NewPushBroadcaster builds the FCM driver. pruner may be nil.
func NewPushBroadcaster(sender Sender, tokens TokenSource, pruner TokenPruner, logger Logger) *PushBroadcaster {
	return &PushBroadcaster{sender: sender, tokens: tokens, pruner: pruner, logger: logger, timeout: 5 * time.Second}
}

func (p *PushBroadcaster) Publish(topic string, payload interface{}) {
	ev, ok := payload.(Event)
	if !ok {
		return
	}
	title, ok := pushTitles[ev.Type]
	if !ok {
		return
	}
	kind, userID, err := ParseTopic(topic)
	if err != nil || kind != "user" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	tokens, err := p.tokens.Tokens(ctx, userID)
	if err != nil {
		p.logger.Errorf("push tokens user=%d: %v", userID, err)
		return
	}
	for _, token := range tokens {
		msg := &messaging.Message{
			Token:        token,
			Notification: &messaging.Notification{Title: title},
			Data:         map[string]string{"type": ev.Type, "topic": topic},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
			APNS: &messaging.APNSConfig{
				Headers: map[string]string{"apns-priority": "10"},
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{Alert: &messaging.ApsAlert{Title: title}, Sound: "default"},
				},
			},
		}
		if _, err := p.sender.Send(ctx, msg); err != nil {
			metrics.Event("push", "dropped")
			if messaging.IsRegistrationTokenNotRegistered(err) && p.pruner != nil {
				if perr := p.pruner.RemoveToken(ctx, token); perr != nil {
					p.logger.Errorf("push prune token: %v", perr)
				}
				continue
			}
			p.logger.Errorf("push send user=%d: %v", userID, err)
			continue
		}
		metrics.Event("push", "sent")
	}
}
