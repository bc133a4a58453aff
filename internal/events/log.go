// Package events keeps a bounded, newest-first history of the requests,
// responses and errors exchanged with a provider.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event.
type Type string

const (
	TypeRequest  Type = "request"
	TypeResponse Type = "response"
	TypeError    Type = "error"
)

// DefaultCapacity is the number of events a Log keeps when none is given.
const DefaultCapacity = 50

// Event is one recorded exchange with a provider.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	Data      any       `json:"data"`
}

// Observer is notified after each event is recorded.
type Observer func(Event)

// Log is a fixed-capacity ring buffer. Record is O(1) and evicts the oldest
// event once the buffer is full. Safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	buf      []Event
	next     int // slot the next event is written to
	size     int
	observer Observer
	now      func() time.Time
}

// NewLog creates a log holding at most capacity events. A non-positive
// capacity uses DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		buf: make([]Event, capacity),
		now: time.Now,
	}
}

// SetObserver installs fn to be called for every recorded event.
func (l *Log) SetObserver(fn Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = fn
}

// Record stores a detached copy of payload and returns the stored event.
// Later mutation of payload by the caller does not alter history.
func (l *Log) Record(typ Type, payload any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		Type:      typ,
		Data:      snapshot(payload),
	}

	l.mu.Lock()
	l.buf[l.next] = ev
	l.next = (l.next + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
	observer := l.observer
	l.mu.Unlock()

	if observer != nil {
		observer(ev)
	}
	return ev
}

// List returns the retained events, newest first.
func (l *Log) List() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// snapshot deep-copies v through its JSON form. Values that cannot be
// encoded are kept as their printed representation.
func snapshot(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return out
}
