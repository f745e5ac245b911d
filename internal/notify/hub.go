// Package notify pushes live post counter changes to websocket subscribers.
package notify

import (
	"context"
	"sort"
	"sync"

	"blogpulse/internal/domain"
	"blogpulse/pkg/logger"
	"blogpulse/pkg/metrics"
)

// Message types
const (
	MessageTypePostCounter = "post_counter"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// Message is the websocket envelope
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type topicMessage struct {
	topic   string
	message Message
}

// Hub fans messages out to the clients subscribed to a post. Register,
// unregister and broadcast are serialized through Run.
type Hub struct {
	topics     map[string]map[*Client]struct{}
	broadcast  chan topicMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logger.Logger

	mu    sync.RWMutex
	count int
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]struct{}),
		broadcast:  make(chan topicMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.Component("notify"),
	}
}

// Run processes hub events until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		// lifecycle events go first so a broadcast never targets a stale set
		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			closed := h.closeAll()
			h.logger.WithField("clients_closed", closed).Info("Notification hub stopped")
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.deliver(m)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[c.topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[c.topic] = subs
	}
	subs[c] = struct{}{}
	h.count++
	metrics.WebsocketClients.Inc()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// drop must be called with mu held
func (h *Hub) drop(c *Client) {
	subs, ok := h.topics[c.topic]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, c.topic)
	}
	close(c.send)
	h.count--
	metrics.WebsocketClients.Dec()
}

// deliver sends to every subscriber of the topic in ID order. A client whose
// buffer is full is disconnected.
func (h *Hub) deliver(m topicMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[m.topic]
	clients := make([]*Client, 0, len(subs))
	for c := range subs {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- m.message:
		default:
			h.drop(c)
		}
	}
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for _, subs := range h.topics {
		for c := range subs {
			h.drop(c)
			closed++
		}
	}
	return closed
}

// Publish queues a message for the topic. It never blocks; when the
// broadcast buffer is full the message is dropped.
func (h *Hub) Publish(topic string, message Message) bool {
	select {
	case h.broadcast <- topicMessage{topic: topic, message: message}:
		return true
	default:
		h.logger.WithField("topic", topic).Warn("Broadcast buffer full, dropping message")
		return false
	}
}

// NotifyCounter publishes a post counter change to the post's subscribers
func (h *Hub) NotifyCounter(change domain.CounterChange) {
	h.Publish(change.PostID, Message{Type: MessageTypePostCounter, Data: change})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Subscribers returns the number of clients on one topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
