package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "greenguard/pkg/logx"
)

func testEntry(id string, at time.Time) Entry {
	return Entry{
		ID:          id,
		At:          at,
		Image:       "leaf-" + id + ".png",
		Detection:   "Leaf Blight",
		Explanation: "Fungal infection of the foliage.",
		Confidence:  0.92,
		CropType:    "maize",
		ChatHistory: []ChatMessage{
			{Role: "user", Content: "what is this?"},
			{Role: "bot", Content: "Disease detected: Leaf Blight"},
		},
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", "NONE", " none "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q: expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i, id := range []string{"a", "b", "c"} {
		if err := st.Append(ctx, testEntry(id, at.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "b" || got[2].ID != "a" {
		t.Fatalf("entries not newest-first: %+v", got)
	}
}

func TestFileRoundTripAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Append(ctx, testEntry("a", at)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Append(ctx, testEntry("b", at.Add(time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Entries survive reopening the same path.
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("entries not newest-first: %+v", got)
	}
	if got[1].Detection != "Leaf Blight" || len(got[1].ChatHistory) != 2 {
		t.Fatalf("entry lost fields: %+v", got[1])
	}
	if !got[1].At.Equal(at) {
		t.Fatalf("at=%v want %v", got[1].At, at)
	}
}

func TestFilePruneAndClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	for i, id := range []string{"old1", "old2", "new1"} {
		if err := st.Append(ctx, testEntry(id, at.Add(time.Duration(i)*24*time.Hour))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	removed, err := st.Prune(ctx, at.Add(36*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed=%d want 2", removed)
	}
	got, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "new1" {
		t.Fatalf("unexpected entries %+v", got)
	}

	// Appending still works after the prune rewrite.
	if err := st.Append(ctx, testEntry("post", at.Add(72*time.Hour))); err != nil {
		t.Fatalf("append after prune: %v", err)
	}
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("entries after clear: %+v", got)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	for i, id := range []string{"a", "b", "c"} {
		if err := st.Append(ctx, testEntry(id, at.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ID != "c" || got[2].ID != "a" {
		t.Fatalf("entries not newest-first: %+v", got)
	}
	if got[1].Confidence != 0.92 || got[1].CropType != "maize" || len(got[1].ChatHistory) != 2 {
		t.Fatalf("entry lost fields: %+v", got[1])
	}

	removed, err := st.Prune(ctx, at.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed=%d want 1", removed)
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("entries after clear: %+v", got)
	}
}
