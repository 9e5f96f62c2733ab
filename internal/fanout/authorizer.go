package fanout

import (
	"context"
	"errors"
	"fmt"

	"masterok/internal/models"
)

var ErrSubscribeDenied = errors.New("fanout: subscription refused")

// Authorizer decides whether a caller may join a topic.
type Authorizer interface {
	Authorize(ctx context.Context, userID int64, topic string) error
}

// ChatLookup resolves a chat's participants.
type ChatLookup interface {
	GetByID(ctx context.Context, id int64) (models.Chat, error)
}

// TopicAuthorizer applies the topic rules: a user topic is private to its
// user, a chat topic to the two participants, and the requests feed is open
// to any authenticated caller.
type TopicAuthorizer struct {
	chats ChatLookup
}

// NewTopicAuthorizer builds the default authorizer.
func NewTopicAuthorizer(chats ChatLookup) *TopicAuthorizer {
	return &TopicAuthorizer{chats: chats}
}

func (a *TopicAuthorizer) Authorize(ctx context.Context, userID int64, topic string) error {
	if userID <= 0 {
		return fmt.Errorf("%w: unauthenticated", ErrSubscribeDenied)
	}
	kind, id, err := ParseTopic(topic)
	if err != nil {
		return err
	}
	switch kind {
	case RequestsTopic:
		return nil
	case "user":
		if id != userID {
			return fmt.Errorf("%w: %s", ErrSubscribeDenied, topic)
		}
		return nil
	default:
		chat, err := a.chats.GetByID(ctx, id)
		if errors.Is(err, models.ErrNoRecord) {
			return fmt.Errorf("%w: %s", ErrSubscribeDenied, topic)
		}
		if err != nil {
			return err
		}
		if !chat.HasParticipant(userID) {
			return fmt.Errorf("%w: %s", ErrSubscribeDenied, topic)
		}
		return nil
	}
}
