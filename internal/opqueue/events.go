package opqueue

import (
	"sync"
	"time"
)

// Event describes one status transition of a queue item. Enqueues carry a
// zero-valued From.
type Event struct {
	ItemID     string    `json:"item_id"`
	DocumentID string    `json:"document_id"`
	Operation  Operation `json:"operation"`
	From       Status    `json:"from,omitempty"`
	To         Status    `json:"to"`
	RetryCount int       `json:"retry_count"`
	At         time.Time `json:"at"`
}

// Hub fans queue status transitions out to subscribers. Publishing never
// blocks: when a subscriber's buffer is full the oldest event is dropped to
// make room, so slow consumers see a gappy stream rather than stalling the
// queue.
type Hub struct {
	mu     sync.Mutex
	closed bool
	subs   map[int]chan Event
	nextID int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size (minimum 1)
// and returns its event channel plus an unsubscribe function. The channel is
// closed on unsubscribe or hub close.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

func (h *Hub) publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		for {
			select {
			case ch <- event:
			default:
				// Buffer full: drop the oldest queued event and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the hub down and closes all subscriber channels. Publishes
// after Close are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
