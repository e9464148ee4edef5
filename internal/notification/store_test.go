package notification

import (
	"fmt"
	"testing"
	"time"

	"greenguard/internal/eventbus"
	logx "greenguard/pkg/logx"
)

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T, cfg StoreConfig) (*Store, *testClock) {
	t.Helper()
	clk := newTestClock()
	return NewStore(cfg, logx.Nop(), WithClock(clk.Now)), clk
}

func TestAddCapacityAndOrdering(t *testing.T) {
	s, clk := newTestStore(t, StoreConfig{})

	for i := 0; i < 60; i++ {
		_, ok := s.Add(Candidate{Title: "T", Message: fmt.Sprintf("msg %d", i), Kind: KindInfo})
		if !ok {
			t.Fatalf("add %d rejected", i)
		}
		clk.Advance(10 * time.Second)
	}

	recs := s.Snapshot()
	if len(recs) != 50 {
		t.Fatalf("len=%d want 50", len(recs))
	}
	if recs[0].Message != "msg 59" {
		t.Fatalf("head=%q want newest", recs[0].Message)
	}
	if recs[49].Message != "msg 10" {
		t.Fatalf("tail=%q want msg 10", recs[49].Message)
	}
	for i := 1; i < len(recs); i++ {
		if !recs[i].CreatedAt.Before(recs[i-1].CreatedAt) {
			t.Fatalf("records not most-recent-first at %d", i)
		}
		if recs[i].ID >= recs[i-1].ID {
			t.Fatalf("ids not decreasing at %d", i)
		}
	}
}

func TestAddDuplicateSuppression(t *testing.T) {
	s, clk := newTestStore(t, StoreConfig{})

	if _, ok := s.Add(Candidate{Title: "A", Message: "same", Kind: KindInfo}); !ok {
		t.Fatal("first add rejected")
	}
	if _, ok := s.Add(Candidate{Title: "A", Message: "same", Kind: KindInfo}); ok {
		t.Fatal("immediate duplicate accepted")
	}
	if n := s.Len(); n != 1 {
		t.Fatalf("len=%d want 1", n)
	}

	// Past the window the same message is fine again.
	clk.Advance(6 * time.Second)
	if _, ok := s.Add(Candidate{Title: "A", Message: "same", Kind: KindInfo}); !ok {
		t.Fatal("add after dedup window rejected")
	}
}

func TestAutomatedRateLimit(t *testing.T) {
	s, clk := newTestStore(t, StoreConfig{})

	for i := 0; i < 4; i++ {
		if _, ok := s.Add(Candidate{Title: "T", Message: fmt.Sprintf("auto %d", i), Kind: KindInfo, Automated: true}); !ok {
			t.Fatalf("automated add %d rejected", i)
		}
		clk.Advance(10 * time.Second)
	}

	// 4 records within the trailing 5 minutes: a 5th automated is rejected,
	// an action-triggered one with the same content is accepted.
	if _, ok := s.Add(Candidate{Title: "T", Message: "fifth", Kind: KindInfo, Automated: true}); ok {
		t.Fatal("automated add accepted past rate limit")
	}
	if _, ok := s.Add(Candidate{Title: "T", Message: "fifth", Kind: KindInfo}); !ok {
		t.Fatal("action-triggered add rejected by automated rate limit")
	}

	// Once the window slides past, automated adds resume.
	clk.Advance(5 * time.Minute)
	if _, ok := s.Add(Candidate{Title: "T", Message: "later", Kind: KindInfo, Automated: true}); !ok {
		t.Fatal("automated add rejected after window passed")
	}
}

func TestAddValidation(t *testing.T) {
	s, _ := newTestStore(t, StoreConfig{})

	if _, ok := s.Add(Candidate{Message: "no title", Kind: KindInfo}); ok {
		t.Fatal("accepted candidate without title")
	}
	if _, ok := s.Add(Candidate{Title: "no message", Kind: KindInfo}); ok {
		t.Fatal("accepted candidate without message")
	}

	rec, ok := s.Add(Candidate{Title: "T", Message: "M", Kind: Kind("bogus")})
	if !ok {
		t.Fatal("rejected candidate with coercible kind")
	}
	if rec.Kind != KindInfo {
		t.Fatalf("kind=%q want info", rec.Kind)
	}
	if rec.Icon != KindInfo.Icon() {
		t.Fatalf("icon=%q want %q", rec.Icon, KindInfo.Icon())
	}
}

func TestReadStateTracking(t *testing.T) {
	s, clk := newTestStore(t, StoreConfig{})

	var ids []int64
	for i := 0; i < 3; i++ {
		rec, _ := s.Add(Candidate{Title: "T", Message: fmt.Sprintf("m%d", i), Kind: KindInfo})
		ids = append(ids, rec.ID)
		clk.Advance(10 * time.Second)
	}
	if n := s.UnreadCount(); n != 3 {
		t.Fatalf("unread=%d want 3", n)
	}

	s.MarkRead(ids[1])
	if n := s.UnreadCount(); n != 2 {
		t.Fatalf("unread=%d want 2", n)
	}
	s.MarkRead(999999) // unknown ID is a no-op
	if n := s.UnreadCount(); n != 2 {
		t.Fatalf("unread=%d want 2 after unknown id", n)
	}

	s.MarkAllRead()
	if n := s.UnreadCount(); n != 0 {
		t.Fatalf("unread=%d want 0", n)
	}

	s.Remove(ids[0])
	if n := s.Len(); n != 2 {
		t.Fatalf("len=%d want 2 after remove", n)
	}
	s.Clear()
	if n := s.Len(); n != 0 {
		t.Fatalf("len=%d want 0 after clear", n)
	}
}

func TestStorePublishesChanges(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	clk := newTestClock()
	s := NewStore(StoreConfig{}, logx.Nop(), WithClock(clk.Now), WithBus(bus))

	rec, _ := s.Add(Candidate{Title: "T", Message: "M", Kind: KindInfo})

	select {
	case ev := <-ch:
		if ev.Type != "notification.added" {
			t.Fatalf("type=%q", ev.Type)
		}
		ce, ok := ev.Data.(ChangeEvent)
		if !ok {
			t.Fatalf("data %T", ev.Data)
		}
		if ce.ID != rec.ID || ce.Unread != 1 || ce.Total != 1 {
			t.Fatalf("change event %+v", ce)
		}
	default:
		t.Fatal("no event published")
	}
}
