// Package inbox holds unread inbound chat messages in memory until the operator
// polls for them.
//
// The buffer is a fixed-capacity ring. Appending past capacity overwrites the
// oldest entry, and DrainAll hands back everything that is buffered while
// leaving the ring empty. Both operations run under one mutex, so an Append
// racing a DrainAll lands either in the drained snapshot or in the buffer
// afterwards, never in neither.
//
// Nothing is persisted: a restart discards unread messages.
package inbox

import (
	"sync"
	"time"
)

// MaxCapacity is the default number of unread messages kept.
const MaxCapacity = 50

// Message is one normalized inbound text message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"userId"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"timestamp"`
}

// Appender adds messages to the buffer.
type Appender interface {
	Append(msg Message)
}

// Drainer takes every buffered message, leaving the buffer empty.
type Drainer interface {
	DrainAll() []Message
}

// Buffer is a bounded FIFO of unread messages.
type Buffer struct {
	now func() time.Time

	mu      sync.Mutex
	ring    []Message
	start   int
	size    int
	last    time.Time
	evicted uint64
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock replaces the clock used to stamp ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// New creates an empty buffer. A non-positive capacity means MaxCapacity.
func New(capacity int, opts ...Option) *Buffer {
	if capacity <= 0 {
		capacity = MaxCapacity
	}
	b := &Buffer{
		now:  func() time.Time { return time.Now().UTC() },
		ring: make([]Message, capacity),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append stamps msg with the receive time and adds it at the tail.
// When the buffer is full the single oldest message is dropped.
func (b *Buffer) Append(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	at := b.now()
	// Keep stamps non-decreasing even if the wall clock steps back.
	if at.Before(b.last) {
		at = b.last
	}
	b.last = at
	msg.ReceivedAt = at

	b.pushLocked(msg)
}

// DrainAll returns all buffered messages oldest-first and empties the buffer.
// The result is never nil.
func (b *Buffer) DrainAll() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, 0, b.size)
	for i := 0; i < b.size; i++ {
		idx := (b.start + i) % len(b.ring)
		out = append(out, b.ring[idx])
		b.ring[idx] = Message{}
	}
	b.start = 0
	b.size = 0
	return out
}

// Len reports how many messages are waiting.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap reports the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Evicted reports how many messages were dropped for capacity since start.
func (b *Buffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

func (b *Buffer) pushLocked(msg Message) {
	capacity := len(b.ring)

	if b.size < capacity {
		b.ring[(b.start+b.size)%capacity] = msg
		b.size++
		return
	}

	// Overwrite oldest.
	b.ring[b.start] = msg
	b.start = (b.start + 1) % capacity
	b.evicted++
}
