// Package transcript models the chat conversation: an ordered message list
// with append, in-place patching, and removal of ephemeral typing
// placeholders.
package transcript

import (
	"sync"
	"time"

	"greenguard/internal/eventbus"
	logx "greenguard/pkg/logx"
)

// Role says who a message renders as.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Status marks transient message states. The zero value is a normal message.
type Status string

const (
	StatusNone   Status = ""
	StatusTyping Status = "typing"
	StatusError  Status = "error"
)

// Message is one transcript entry. Position is significant; there is no
// reordering.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content,omitempty"`
	Image   string    `json:"image,omitempty"` // opaque reference (path, URL, data URI)
	Status  Status    `json:"status,omitempty"`
	At      time.Time `json:"at,omitzero"`
}

// Patch updates selected fields of an existing message. Nil fields are
// left untouched.
type Patch struct {
	Content *string
	Image   *string
	Status  *Status
	At      *time.Time
}

// ChangeEvent is published on the event bus whenever the transcript mutates.
type ChangeEvent struct {
	Op  string `json:"op"` // "append" | "update" | "remove_typing" | "clear"
	Len int    `json:"len"`
}

// Store holds the ordered transcript. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	msgs []Message

	log logx.Logger
	bus eventbus.Bus
}

// Option customizes a Store.
type Option func(*Store)

// WithBus attaches an event bus for change notifications.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

func NewStore(log logx.Logger, opts ...Option) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message to the end of the transcript and returns its index.
func (s *Store) Append(m Message) int {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	idx := len(s.msgs) - 1
	n := len(s.msgs)
	s.mu.Unlock()

	s.publish("append", n)
	return idx
}

// UpdateAt merges patch into the message at index. Out-of-range indexes are
// a silent no-op, logged at debug; callers racing a removal should not fail
// the whole flow over a stale index.
func (s *Store) UpdateAt(index int, patch Patch) {
	s.mu.Lock()
	if index < 0 || index >= len(s.msgs) {
		n := len(s.msgs)
		s.mu.Unlock()
		s.log.Debug("transcript update out of range", logx.Int("index", index), logx.Int("len", n))
		return
	}
	m := &s.msgs[index]
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Image != nil {
		m.Image = *patch.Image
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.At != nil {
		m.At = *patch.At
	}
	n := len(s.msgs)
	s.mu.Unlock()

	s.publish("update", n)
}

// RemoveTyping deletes every typing placeholder, preserving the relative
// order of the rest. Idempotent.
func (s *Store) RemoveTyping() {
	s.mu.Lock()
	kept := s.msgs[:0]
	removed := 0
	for _, m := range s.msgs {
		if m.Status == StatusTyping {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.msgs = kept
	n := len(s.msgs)
	s.mu.Unlock()

	if removed > 0 {
		s.publish("remove_typing", n)
	}
}

// Clear empties the transcript.
func (s *Store) Clear() {
	s.mu.Lock()
	had := len(s.msgs) > 0
	s.msgs = nil
	s.mu.Unlock()

	if had {
		s.publish("clear", 0)
	}
}

// Messages returns a copy of the transcript in order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *Store) publish(op string, n int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: "transcript.changed", Data: ChangeEvent{Op: op, Len: n}})
}
