package audit

import (
	"context"
	"sync"
	"time"
)

// Event is one audit trail entry as delivered to live subscribers.
type Event struct {
	Time      time.Time      `json:"time"`
	Name      string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Stream fans audit events out to live subscribers (SSE clients). Slow
// subscribers drop events rather than blocking the emitter; the log line
// remains the durable record.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewStream initialises an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel receiving events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the event to every subscriber.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

var defaultStream = NewStream()

// Events is the process-wide audit stream LogEvent publishes to.
func Events() *Stream { return defaultStream }
