// Package fanout delivers change notifications to interested subscribers.
//
// Delivery is at-most-once and best effort. Publish never blocks the caller
// and never reports failures; the database stays the source of truth.
package fanout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Broadcaster publishes a payload on a topic.
type Broadcaster interface {
	Publish(topic string, payload interface{})
}

// Event types carried in Event.Type.
const (
	RequestCreated  = "request.created"
	RequestUpdated  = "request.updated"
	ResponseCreated = "response.created"
	ChatCreated     = "chat.created"
	ChatUpdated     = "chat.updated"
	MessageNew      = "message.new"
	MessagesRead    = "messages.read"
	MessageDeleted  = "message.deleted"
	PresenceUpdated = "presence.updated"
	Typing          = "typing"
)

// Event is the payload domain code publishes.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Frame is what subscribers receive.
type Frame struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// NewFrame wraps payload for topic.
func NewFrame(topic string, payload interface{}) Frame {
	if ev, ok := payload.(Event); ok {
		return Frame{Topic: topic, Type: ev.Type, Data: ev.Data}
	}
	return Frame{Topic: topic, Data: payload}
}

// RequestsTopic is the public feed of open requests.
const RequestsTopic = "requests"

// UserTopic is the private topic of one user.
func UserTopic(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }

// ChatTopic is the topic shared by the two participants of a chat.
func ChatTopic(chatID int64) string { return "chat:" + strconv.FormatInt(chatID, 10) }

var ErrBadTopic = errors.New("fanout: malformed topic")

// ParseTopic splits a topic into its kind ("user", "chat", "requests") and id.
func ParseTopic(topic string) (string, int64, error) {
	if topic == RequestsTopic {
		return RequestsTopic, 0, nil
	}
	kind, raw, ok := strings.Cut(topic, ":")
	if !ok || (kind != "user" && kind != "chat") {
		return "", 0, fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	return kind, id, nil
}

// Noop discards everything. It is used when realtime delivery is disabled.
type Noop struct{}

func (Noop) Publish(string, interface{}) {}

// Multi publishes to several broadcasters in order.
type Multi []Broadcaster

func (m Multi) Publish(topic string, payload interface{}) {
	for _, b := range m {
		b.Publish(topic, payload)
	}
}

// Published is one call captured by Recorder.
type Published struct {
	Topic   string
	Payload interface{}
}

// Recorder keeps every publish in memory. Tests use it to assert on events.
type Recorder struct {
	mu     sync.Mutex
	events []Published
}

func (r *Recorder) Publish(topic string, payload interface{}) {
	r.mu.Lock()
	r.events = append(r.events, Published{Topic: topic, Payload: payload})
	r.mu.Unlock()
}

// Events returns a copy of the captured publishes.
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// Find returns the captured events of one type on one topic.
func (r *Recorder) Find(topic, eventType string) []Event {
	var out []Event
	for _, p := range r.Events() {
		ev, ok := p.Payload.(Event)
		if ok && p.Topic == topic && ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops everything captured so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
