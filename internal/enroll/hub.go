package enroll

import (
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 32

// Hub fans session snapshots out to any number of subscribers. Publishing
// never blocks: a subscriber that falls behind misses snapshots.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Snapshot
	closing     bool
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Snapshot)}
}

// Subscribe returns an id for Unsubscribe and a channel of snapshots. After
// Close the channel comes back already closed.
func (h *Hub) Subscribe() (string, <-chan Snapshot) {
	id := uuid.NewString()
	ch := make(chan Snapshot, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the subscriber's channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish delivers snap to every subscriber with room for it.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- snap:
		default:
			// subscriber is full, skip so as not to stall the session
		}
	}
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
