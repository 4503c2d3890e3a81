// Package realtime pushes portal events to browsers over websockets.
// Connections subscribe to one topic: "tap:<id>" for a kiosk scan screen or
// "card:<rfid>" for a signed-in dashboard.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/ezvendo/portal/internal/logging"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Event is the JSON frame sent to subscribers.
type Event struct {
	Type  string    `json:"type"`
	Topic string    `json:"topic"`
	Data  any       `json:"data,omitempty"`
	At    time.Time `json:"at"`
}

type subscription struct {
	topic string
	conn  Conn
}

type envelope struct {
	topic string
	data  []byte
}

type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[Conn]struct{}
	register   chan subscription
	unregister chan subscription
	broadcast  chan envelope
	done       chan struct{}
	stopOnce   sync.Once
	logger     logging.Logger
	now        func() time.Time
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		topics:     make(map[string]map[Conn]struct{}),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		broadcast:  make(chan envelope, 256),
		done:       make(chan struct{}),
		logger:     logger,
		now:        time.Now,
	}
}

func TapTopic(tapID string) string { return "tap:" + tapID }
func CardTopic(rfid string) string { return "card:" + rfid }

// Run owns the subscriber set until ctx is cancelled, then closes every connection.
// Subscriptions arriving after Run has returned are closed immediately.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conns := range h.topics {
				for c := range conns {
					_ = c.Close()
				}
			}
			h.topics = make(map[string]map[Conn]struct{})
			h.mu.Unlock()
			return

		case sub := <-h.register:
			h.mu.Lock()
			if h.topics[sub.topic] == nil {
				h.topics[sub.topic] = make(map[Conn]struct{})
			}
			h.topics[sub.topic][sub.conn] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug(ctx, "websocket subscribed", "topic", sub.topic, "clients", h.Count(sub.topic))

		case sub := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.topics[sub.topic]; ok {
				if _, ok := conns[sub.conn]; ok {
					delete(conns, sub.conn)
					_ = sub.conn.Close()
				}
				if len(conns) == 0 {
					delete(h.topics, sub.topic)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.topics[msg.topic] {
				if err := c.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					h.logger.Warn(ctx, "websocket write failed", "topic", msg.topic, "error", err)
					_ = c.Close()
					delete(h.topics[msg.topic], c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for topic. It never blocks; events are dropped when
// nobody listens or the queue is full.
func (h *Hub) Publish(topic, eventType string, data any) {
	if h.Count(topic) == 0 {
		return
	}
	b, err := json.Marshal(Event{Type: eventType, Topic: topic, Data: data, At: h.now()})
	if err != nil {
		h.logger.Error(context.Background(), "encode websocket event", "type", eventType, "error", err)
		return
	}
	select {
	case h.broadcast <- envelope{topic: topic, data: b}:
	default:
	}
}

func (h *Hub) Subscribe(topic string, c Conn) {
	select {
	case h.register <- subscription{topic: topic, conn: c}:
	case <-h.done:
		_ = c.Close()
	}
}

func (h *Hub) Unsubscribe(topic string, c Conn) {
	select {
	case h.unregister <- subscription{topic: topic, conn: c}:
	case <-h.done:
	}
}

// Serve subscribes conn to topic and blocks until the client goes away.
func (h *Hub) Serve(topic string, conn *websocket.Conn) {
	h.Subscribe(topic, conn)
	defer h.Unsubscribe(topic, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Total is the number of open connections across topics.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.topics {
		n += len(conns)
	}
	return n
}
