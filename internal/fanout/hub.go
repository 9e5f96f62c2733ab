package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"masterok/internal/auth"
	"masterok/internal/metrics"
)

const (
	readLimit     = 4 << 10
	readDeadline  = 120 * time.Second
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 64
	authTimeout   = 3 * time.Second
)

// Logger provides the logging the hub needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// clientFrame is a command sent by a websocket client.
type clientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type client struct {
	id     string
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub is the websocket driver. It keeps the local subscribers of every topic
// and writes frames to them through per-connection buffered queues; a full
// queue drops the frame for that connection only.
type Hub struct {
	upgrader websocket.Upgrader
	auth     Authorizer
	logger   Logger

	// out receives client generated events (typing). It defaults to the hub
	// itself and is replaced by the Redis driver when instances share fan-out.
	out Broadcaster

	mu      sync.RWMutex
	topics  map[string]map[*client]struct{}
	clients map[*client]struct{}
}

// NewHub builds a hub that checks subscriptions with authz.
func NewHub(authz Authorizer, logger Logger) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		auth:    authz,
		logger:  logger,
		topics:  make(map[string]map[*client]struct{}),
		clients: make(map[*client]struct{}),
	}
	h.out = h
	return h
}

// SetOutbound routes client generated events through b.
func (h *Hub) SetOutbound(b Broadcaster) {
	h.out = b
}

// Publish implements Broadcaster for subscribers connected to this instance.
func (h *Hub) Publish(topic string, payload interface{}) {
	data, err := json.Marshal(NewFrame(topic, payload))
	if err != nil {
		h.logger.Errorf("fanout encode topic=%s: %v", topic, err)
		return
	}
	h.Deliver(topic, data)
}

// Deliver writes an already encoded frame to the local subscribers of topic.
func (h *Hub) Deliver(topic string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		select {
		case c.send <- data:
			metrics.Event("ws", "sent")
		default:
			metrics.Event("ws", "dropped")
		}
	}
}

// Subscribers returns the number of local subscribers of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ServeWS upgrades an authenticated request. The caller identity must have
// been placed in the request context by the auth middleware.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("ws upgrade failed: %v", err)
		return
	}

	c := &client{
		id:     uuid.NewString(),
		userID: id.ID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.ConnOpened()
	h.logger.Infof("ws connect user=%d conn=%s", c.userID, c.id)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for topic := range c.topics {
		h.leaveLocked(c, topic)
	}
	h.mu.Unlock()
	c.close()
	metrics.ConnClosed()
	h.logger.Infof("ws disconnect user=%d conn=%s", c.userID, c.id)
}

func (h *Hub) leaveLocked(c *client, topic string) {
	delete(c.topics, topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))

		if strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
			h.reply(c, Frame{Type: "pong"})
			continue
		}
		var f clientFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			h.reply(c, Frame{Type: "error", Data: "malformed frame"})
			continue
		}
		h.handle(c, f)
	}
}

func (h *Hub) handle(c *client, f clientFrame) {
	switch f.Action {
	case "subscribe":
		if err := h.subscribe(c, f.Topic); err != nil {
			h.reply(c, Frame{Topic: f.Topic, Type: "error", Data: err.Error()})
			return
		}
		h.reply(c, Frame{Topic: f.Topic, Type: "subscribed"})
	case "unsubscribe":
		h.unsubscribe(c, f.Topic)
		h.reply(c, Frame{Topic: f.Topic, Type: "unsubscribed"})
	case "typing":
		kind, chatID, err := ParseTopic(f.Topic)
		if err != nil || kind != "chat" || !h.isSubscribed(c, f.Topic) {
			h.reply(c, Frame{Topic: f.Topic, Type: "error", Data: "not subscribed"})
			return
		}
		h.out.Publish(f.Topic, Event{Type: Typing, Data: map[string]int64{"chat_id": chatID, "user_id": c.userID}})
	case "ping":
		h.reply(c, Frame{Type: "pong"})
	default:
		h.reply(c, Frame{Type: "error", Data: "unknown action"})
	}
}

// subscribe joins c to topic once the authorizer allows it.
func (h *Hub) subscribe(c *client, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()
	if err := h.auth.Authorize(ctx, c.userID, topic); err != nil {
		if !errors.Is(err, ErrSubscribeDenied) && !errors.Is(err, ErrBadTopic) {
			h.logger.Errorf("ws authorize user=%d topic=%s: %v", c.userID, topic, err)
		}
		return ErrSubscribeDenied
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return ErrSubscribeDenied
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	c.topics[topic] = struct{}{}
	return nil
}

func (h *Hub) unsubscribe(c *client, topic string) {
	h.mu.Lock()
	h.leaveLocked(c, topic)
	h.mu.Unlock()
}

func (h *Hub) isSubscribed(c *client, topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// reply queues a frame for a single connection.
func (h *Hub) reply(c *client, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Errorf("ws write user=%d conn=%s: %v", c.userID, c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeDeadline))
		_ = conn.Close()
	}
}
