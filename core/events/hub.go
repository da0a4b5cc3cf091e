package events

import (
	"sync"

	"safi/logger"
	"safi/model"
)

// Publisher receives track lifecycle events.
type Publisher interface {
	Publish(event model.TrackEvent)
}

// Hub fans track events out to in-process subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan model.TrackEvent
	nextID int
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[int]chan model.TrackEvent), buffer: buffer}
}

// Subscribe returns a channel of events and a func that closes it.
func (h *Hub) Subscribe() (<-chan model.TrackEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan model.TrackEvent, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks: a subscriber with a full buffer misses the event.
func (h *Hub) Publish(event model.TrackEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			logger.Warn("dropping track event for slow subscriber",
				logger.Int("subscriber", id),
				logger.String("type", string(event.Type)))
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
