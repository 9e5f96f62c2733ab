package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/messaging"
	"github.com/gorilla/websocket"

	"masterok/internal/auth"
	"masterok/internal/models"
)

type stubLogger struct{}

func (stubLogger) Infof(string, ...interface{})  {}
func (stubLogger) Errorf(string, ...interface{}) {}

type stubChats map[int64]models.Chat

func (s stubChats) GetByID(_ context.Context, id int64) (models.Chat, error) {
	c, ok := s[id]
	if !ok {
		return models.Chat{}, models.ErrNoRecord
	}
	return c, nil
}

func TestParseTopic(t *testing.T) {
	kind, id, err := ParseTopic(ChatTopic(9))
	if err != nil || kind != "chat" || id != 9 {
		t.Fatalf("unexpected parse: %s %d %v", kind, id, err)
	}
	if kind, _, err := ParseTopic(RequestsTopic); err != nil || kind != RequestsTopic {
		t.Fatalf("requests topic: %s %v", kind, err)
	}
	for _, bad := range []string{"", "user:", "user:abc", "room:1", "chat:-2"} {
		if _, _, err := ParseTopic(bad); !errors.Is(err, ErrBadTopic) {
			t.Fatalf("expected ErrBadTopic for %q, got %v", bad, err)
		}
	}
}

func TestTopicAuthorizer(t *testing.T) {
	a := NewTopicAuthorizer(stubChats{5: {ID: 5, ClientID: 1, ProviderID: 2}})
	ctx := context.Background()

	allowed := []struct {
		user  int64
		topic string
	}{
		{1, UserTopic(1)},
		{1, ChatTopic(5)},
		{2, ChatTopic(5)},
		{3, RequestsTopic},
	}
	for _, c := range allowed {
		if err := a.Authorize(ctx, c.user, c.topic); err != nil {
			t.Fatalf("user %d on %s: unexpected %v", c.user, c.topic, err)
		}
	}

	denied := []struct {
		user  int64
		topic string
	}{
		{1, UserTopic(2)},
		{3, ChatTopic(5)},
		{1, ChatTopic(404)},
		{0, RequestsTopic},
	}
	for _, c := range denied {
		if err := a.Authorize(ctx, c.user, c.topic); !errors.Is(err, ErrSubscribeDenied) {
			t.Fatalf("user %d on %s: expected denial, got %v", c.user, c.topic, err)
		}
	}
}

func TestRecorderFind(t *testing.T) {
	var r Recorder
	Multi{&r, Noop{}}.Publish(UserTopic(1), Event{Type: ChatCreated, Data: 1})
	r.Publish(UserTopic(1), Event{Type: ChatUpdated})
	if got := r.Find(UserTopic(1), ChatCreated); len(got) != 1 {
		t.Fatalf("expected one chat.created, got %d", len(got))
	}
	r.Reset()
	if len(r.Events()) != 0 {
		t.Fatal("reset should clear events")
	}
}

type blockingBroadcaster struct {
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (b *blockingBroadcaster) Publish(topic string, _ interface{}) {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, topic)
	b.mu.Unlock()
}

func TestAsyncNeverBlocks(t *testing.T) {
	slow := &blockingBroadcaster{release: make(chan struct{})}
	a := NewAsync("test", slow, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.Publish(RequestsTopic, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow driver")
	}

	close(slow.release)
	a.Close()
	slow.mu.Lock()
	defer slow.mu.Unlock()
	// one in flight in the worker plus the queue capacity
	if len(slow.got) == 0 || len(slow.got) > 3 {
		t.Fatalf("unexpected delivered count %d", len(slow.got))
	}
}

type stubDeliverer struct {
	topic string
	data  []byte
}

func (d *stubDeliverer) Deliver(topic string, data []byte) {
	d.topic, d.data = topic, data
}

func TestRelayForward(t *testing.T) {
	d := &stubDeliverer{}
	r := NewRelay(nil, "", d, stubLogger{})
	frame, _ := json.Marshal(NewFrame(ChatTopic(3), Event{Type: MessageNew, Data: "x"}))
	r.forward(frame)
	if d.topic != ChatTopic(3) || string(d.data) != string(frame) {
		t.Fatalf("unexpected delivery %q %q", d.topic, d.data)
	}
	d.topic = ""
	r.forward([]byte("not json"))
	if d.topic != "" {
		t.Fatal("malformed frame must be dropped")
	}
}

type stubSender struct {
	mu   sync.Mutex
	sent []*messaging.Message
}

func (s *stubSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	return "ok", nil
}

type stubTokens map[int64][]string

func (s stubTokens) Tokens(_ context.Context, id int64) ([]string, error) { return s[id], nil }

func TestPushBroadcasterFiltersEvents(t *testing.T) {
	sender := &stubSender{}
	p := NewPushBroadcaster(sender, stubTokens{7: {"a", "b"}}, nil, stubLogger{})

	p.Publish(UserTopic(7), Event{Type: ChatCreated})
	p.Publish(UserTopic(7), Event{Type: PresenceUpdated})
	p.Publish(ChatTopic(7), Event{Type: ChatCreated})
	p.Publish(UserTopic(8), Event{Type: ChatCreated})

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 pushes, got %d", len(sender.sent))
	}
	if sender.sent[0].Token != "a" || sender.sent[0].Data["type"] != ChatCreated {
		t.Fatalf("unexpected push %+v", sender.sent[0])
	}
}

// hubServer serves the hub with the identity taken from the X-User header.
func hubServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id int64
		switch r.Header.Get("X-User") {
		case "1":
			id = 1
		case "2":
			id = 2
		case "3":
			id = 3
		}
		ctx := auth.WithIdentity(r.Context(), auth.Identity{ID: id, Role: models.RoleClient})
		h.ServeWS(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User": []string{user}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f map[string]interface{}
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func send(t *testing.T, conn *websocket.Conn, action, topic string) {
	t.Helper()
	if err := conn.WriteJSON(clientFrame{Action: action, Topic: topic}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHubSubscribeAndDeliver(t *testing.T) {
	h := NewHub(NewTopicAuthorizer(stubChats{5: {ID: 5, ClientID: 1, ProviderID: 2}}), stubLogger{})
	srv := hubServer(t, h)

	c1 := dial(t, srv, "1")
	c2 := dial(t, srv, "2")
	c3 := dial(t, srv, "3")

	send(t, c1, "subscribe", ChatTopic(5))
	if f := readFrame(t, c1); f["type"] != "subscribed" {
		t.Fatalf("expected subscribed, got %v", f)
	}
	send(t, c2, "subscribe", ChatTopic(5))
	readFrame(t, c2)

	send(t, c3, "subscribe", ChatTopic(5))
	if f := readFrame(t, c3); f["type"] != "error" {
		t.Fatalf("outsider must be refused, got %v", f)
	}
	if n := h.Subscribers(ChatTopic(5)); n != 2 {
		t.Fatalf("expected 2 subscribers, got %d", n)
	}

	h.Publish(ChatTopic(5), Event{Type: MessageNew, Data: map[string]string{"text": "hi"}})
	for _, c := range []*websocket.Conn{c1, c2} {
		f := readFrame(t, c)
		if f["type"] != MessageNew || f["topic"] != ChatTopic(5) {
			t.Fatalf("unexpected frame %v", f)
		}
	}

	send(t, c1, "typing", ChatTopic(5))
	f := readFrame(t, c2)
	if f["type"] != Typing {
		t.Fatalf("expected typing frame, got %v", f)
	}
	// the sender also receives its own typing frame as a subscriber
	readFrame(t, c1)

	send(t, c3, "typing", ChatTopic(5))
	if f := readFrame(t, c3); f["type"] != "error" {
		t.Fatalf("typing without subscription must be refused, got %v", f)
	}

	send(t, c1, "unsubscribe", ChatTopic(5))
	readFrame(t, c1)
	if n := h.Subscribers(ChatTopic(5)); n != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", n)
	}
}

func TestHubPing(t *testing.T) {
	h := NewHub(NewTopicAuthorizer(stubChats{}), stubLogger{})
	srv := hubServer(t, h)
	c := dial(t, srv, "1")
	if err := c.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, c); f["type"] != "pong" {
		t.Fatalf("expected pong, got %v", f)
	}
}

func TestHubRejectsAnonymous(t *testing.T) {
	h := NewHub(NewTopicAuthorizer(stubChats{}), stubLogger{})
	srv := hubServer(t, h)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}
