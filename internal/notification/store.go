package notification

import (
	"sync"
	"time"

	"greenguard/internal/eventbus"
	logx "greenguard/pkg/logx"
)

const (
	// DefaultCapacity bounds the list; inserting beyond it evicts the oldest.
	DefaultCapacity = 50
	// DefaultDedupWindow suppresses a candidate whose message matches the
	// newest record created within this window.
	DefaultDedupWindow = 5 * time.Second
	// DefaultAutomatedWindow / DefaultAutomatedMax rate-limit automated
	// candidates: if more than AutomatedMax records were created within the
	// trailing AutomatedWindow, an automated candidate is rejected.
	DefaultAutomatedWindow = 5 * time.Minute
	DefaultAutomatedMax    = 3
)

// StoreConfig tunes the store limits. Zero values take the defaults above.
type StoreConfig struct {
	Capacity        int
	DedupWindow     time.Duration
	AutomatedWindow time.Duration
	AutomatedMax    int
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.AutomatedWindow <= 0 {
		c.AutomatedWindow = DefaultAutomatedWindow
	}
	if c.AutomatedMax <= 0 {
		c.AutomatedMax = DefaultAutomatedMax
	}
	return c
}

// Store holds a bounded, most-recent-first list of notifications.
//
// All operations are safe for concurrent use. Mutations publish change
// events on the bus (when one is attached) so UI surfaces can refresh the
// unread badge without polling.
type Store struct {
	mu   sync.Mutex
	cfg  StoreConfig
	recs []Record // recs[0] is the newest

	lastID int64

	log logx.Logger
	bus eventbus.Bus
	now func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithBus attaches an event bus for change notifications.
func WithBus(bus eventbus.Bus) StoreOption {
	return func(s *Store) { s.bus = bus }
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(cfg StoreConfig, log logx.Logger, opts ...StoreOption) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		cfg: cfg.withDefaults(),
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply updates the store limits at runtime. Existing records are kept;
// a lowered capacity takes effect on the next insert.
func (s *Store) Apply(cfg StoreConfig) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Add validates and inserts a candidate. It returns the stored record and
// true on insertion, or a zero record and false when the candidate was
// dropped (missing fields, duplicate, or rate-limited).
func (s *Store) Add(c Candidate) (Record, bool) {
	if c.Title == "" || c.Message == "" {
		s.log.Warn("notification missing required fields",
			logx.String("title", c.Title),
			logx.Bool("automated", c.Automated))
		return Record{}, false
	}
	if !c.Kind.Valid() {
		s.log.Warn("invalid notification kind; coercing to info", logx.String("kind", string(c.Kind)))
		c.Kind = KindInfo
	}

	s.mu.Lock()
	now := s.now()

	// Duplicate suppression: newest record with the same message, too recent.
	if len(s.recs) > 0 {
		head := s.recs[0]
		if head.Message == c.Message && now.Sub(head.CreatedAt) < s.cfg.DedupWindow {
			s.mu.Unlock()
			s.log.Debug("duplicate notification suppressed", logx.String("message", c.Message))
			return Record{}, false
		}
	}

	// Automated rate limit: count records created within the trailing window.
	if c.Automated {
		recent := 0
		for _, r := range s.recs {
			if now.Sub(r.CreatedAt) < s.cfg.AutomatedWindow {
				recent++
			}
		}
		if recent > s.cfg.AutomatedMax {
			s.mu.Unlock()
			s.log.Debug("automated notification rate-limited", logx.Int("recent", recent))
			return Record{}, false
		}
	}

	rec := Record{
		ID:        s.nextIDLocked(now),
		Title:     c.Title,
		Message:   c.Message,
		Kind:      c.Kind,
		Icon:      c.Kind.Icon(),
		CreatedAt: now,
		Automated: c.Automated,
	}
	s.recs = append([]Record{rec}, s.recs...)
	if len(s.recs) > s.cfg.Capacity {
		s.recs = s.recs[:s.cfg.Capacity]
	}
	unread, total := s.countsLocked()
	s.mu.Unlock()

	s.publish("notification.added", ChangeEvent{Op: "added", ID: rec.ID, Unread: unread, Total: total})
	return rec, true
}

// MarkRead sets the read flag on one record. Unknown IDs are a no-op.
func (s *Store) MarkRead(id int64) {
	s.mu.Lock()
	changed := false
	for i := range s.recs {
		if s.recs[i].ID == id && !s.recs[i].Read {
			s.recs[i].Read = true
			changed = true
			break
		}
	}
	unread, total := s.countsLocked()
	s.mu.Unlock()

	if changed {
		s.publish("notification.read", ChangeEvent{Op: "read", ID: id, Unread: unread, Total: total})
	}
}

// MarkAllRead sets the read flag on every record.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	changed := false
	for i := range s.recs {
		if !s.recs[i].Read {
			s.recs[i].Read = true
			changed = true
		}
	}
	total := len(s.recs)
	s.mu.Unlock()

	if changed {
		s.publish("notification.read", ChangeEvent{Op: "read", Unread: 0, Total: total})
	}
}

// Remove deletes one record. Unknown IDs are a no-op.
func (s *Store) Remove(id int64) {
	s.mu.Lock()
	changed := false
	for i := range s.recs {
		if s.recs[i].ID == id {
			s.recs = append(s.recs[:i], s.recs[i+1:]...)
			changed = true
			break
		}
	}
	unread, total := s.countsLocked()
	s.mu.Unlock()

	if changed {
		s.publish("notification.cleared", ChangeEvent{Op: "cleared", ID: id, Unread: unread, Total: total})
	}
}

// Clear empties the list.
func (s *Store) Clear() {
	s.mu.Lock()
	had := len(s.recs) > 0
	s.recs = nil
	s.mu.Unlock()

	if had {
		s.publish("notification.cleared", ChangeEvent{Op: "cleared"})
	}
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	unread, _ := s.countsLocked()
	return unread
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// Snapshot returns a copy of the list, newest first.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out
}

func (s *Store) countsLocked() (unread, total int) {
	for _, r := range s.recs {
		if !r.Read {
			unread++
		}
	}
	return unread, len(s.recs)
}

// nextIDLocked derives IDs from creation time (millis) but guarantees they
// stay strictly increasing even when two inserts land in the same tick.
func (s *Store) nextIDLocked(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *Store) publish(typ string, ev ChangeEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
