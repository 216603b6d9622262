package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names a notification type. It is sent as the SSE event name.
type Kind string

const (
	MessageBuffered Kind = "message.buffered"
	ReplyFailed     Kind = "reply.failed"
	PushSent        Kind = "push.sent"
	PushFailed      Kind = "push.failed"
)

// Event is one notification. Data is a JSON payload and never carries
// message text.
type Event struct {
	ID   int64     `json:"id"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"`
}

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(kind Kind, data any)
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

func (h *Hub) Publish(kind Kind, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	// IDs are assigned under the lock so subscribers see them in order.
	ev := Event{
		ID:   h.nextID.Add(1),
		Kind: kind,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Slow operators miss notifications; producers never wait.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a listener. The returned func unsubscribes and closes
// the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 32)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)

	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
