package services

import (
	"sync"

	"github.com/mla-quiz/medref/internal/models"
	"go.uber.org/zap"
)

// Broadcaster delivers a message to every open page
type Broadcaster interface {
	Broadcast(msg models.Message)
}

// Subscription is one open page's view of the broadcast stream
type Subscription struct {
	C  <-chan models.Message
	ch chan models.Message
}

// Hub fans gateway messages out to subscribed pages
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	logger *zap.Logger
}

// NewHub creates a hub whose subscribers buffer up to buffer messages
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new page
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan models.Message, h.buffer)
	sub := &Subscription{C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a page and closes its channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Broadcast never blocks: a page whose buffer is full is dropped
func (h *Hub) Broadcast(msg models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("dropping slow client", zap.String("message", string(msg.Type)))
			h.removeLocked(sub)
		}
	}
}

// Clients returns the number of subscribed pages
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every page
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.removeLocked(sub)
	}
	h.closed = true
}
