package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndListDebugLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []struct {
		timestamp string
		message   string
		data      string
	}{
		{"2026-08-23T10:00:00Z", "player joined", `{"room":"lobby"}`},
		{"2026-08-23T10:00:01Z", "video loaded", ""},
		{"2026-08-23T10:00:02Z", "tick lag", `{"ms":48}`},
	}
	for _, e := range entries {
		stored, err := s.AppendDebugLog(ctx, e.timestamp, e.message, e.data)
		if err != nil {
			t.Fatalf("append %q: %v", e.message, err)
		}
		if stored.ID == 0 {
			t.Fatalf("expected assigned id, got 0")
		}
		if stored.CreatedAt.IsZero() {
			t.Fatalf("expected created_at set")
		}
	}

	got, err := s.DebugLogsSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i, e := range entries {
		if got[i].Timestamp != e.timestamp || got[i].Message != e.message || got[i].Data != e.data {
			t.Fatalf("entry %d mismatch: %+v", i, got[i])
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("entries not in insert order: %d after %d", got[i].ID, got[i-1].ID)
		}
	}
}

func TestDebugLogsSinceBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.AppendDebugLog(ctx, "2026-08-23T10:00:00Z", "boundary", "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// An entry stored exactly at the cutoff is included.
	got, err := s.DebugLogsSince(ctx, stored.CreatedAt)
	if err != nil {
		t.Fatalf("list at boundary: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected boundary entry included, got %d entries", len(got))
	}

	got, err = s.DebugLogsSince(ctx, stored.CreatedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries after cutoff, got %d", len(got))
	}
}

func TestDebugLogRetention(t *testing.T) {
	s := newTestStore(t)
	s.rowCap = 5
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		if _, err := s.AppendDebugLog(ctx, "2026-08-23T10:00:00Z", fmt.Sprintf("entry %d", i), ""); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := s.DebugLogsSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected cap of 5 entries, got %d", len(got))
	}
	if got[0].Message != "entry 4" || got[4].Message != "entry 8" {
		t.Fatalf("expected newest 5 kept, got %q .. %q", got[0].Message, got[4].Message)
	}
}
