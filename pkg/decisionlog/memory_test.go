package decisionlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func int64Ptr(v int64) *int64 { return &v }

// setupMemorySink creates an in-memory sink closed at test end.
func setupMemorySink(t *testing.T, cfg MemoryConfig) *MemorySink {
	t.Helper()

	s, err := NewMemorySink(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory sink: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func testEntry(requestID string) *Entry {
	e := NewEntry(requestID, config.LogLevelInfo)
	e.Kind = "signed"
	e.Action = `Jans::Action::"Read"`
	e.Resource = `Jans::Issue::"1"`
	e.Principals = []string{`Jans::User::"alice"`}
	e.Decision = authz.Allow
	e.DecisionTime = 1500 * time.Microsecond
	return e
}

func TestMemorySink_WriteAndGet(t *testing.T) {
	ctx := context.Background()
	s := setupMemorySink(t, MemoryConfig{})

	e := testEntry("req-1")
	e.Diagnostics = map[string]authz.Diagnostics{
		`Jans::User::"alice"`: {Reason: []string{"allow-admins"}},
	}
	if err := s.Write(ctx, e); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Failed to get entry: %v", err)
	}
	if got.RequestID != "req-1" {
		t.Errorf("Expected request id req-1, got %s", got.RequestID)
	}
	if got.Decision != authz.Allow {
		t.Errorf("Expected ALLOW, got %s", got.Decision)
	}
	if got.DecisionTime != 1500*time.Microsecond {
		t.Errorf("Expected decision time 1.5ms, got %v", got.DecisionTime)
	}
	if reasons := got.Diagnostics[`Jans::User::"alice"`].Reason; len(reasons) != 1 || reasons[0] != "allow-admins" {
		t.Errorf("Unexpected diagnostics: %+v", got.Diagnostics)
	}
}

func TestMemorySink_GetNotFound(t *testing.T) {
	s := setupMemorySink(t, MemoryConfig{})

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemorySink_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := setupMemorySink(t, MemoryConfig{TTL: time.Minute, Now: clock.Now})

	old := testEntry("req-old")
	if err := s.Write(ctx, old); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	clock.Advance(45 * time.Second)
	fresh := testEntry("req-fresh")
	if err := s.Write(ctx, fresh); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}

	clock.Advance(30 * time.Second)

	if _, err := s.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired entry to be gone, got %v", err)
	}
	if _, err := s.Get(ctx, fresh.ID); err != nil {
		t.Errorf("Expected fresh entry to remain: %v", err)
	}
}

func TestMemorySink_MaxItems(t *testing.T) {
	ctx := context.Background()
	s := setupMemorySink(t, MemoryConfig{MaxItems: int64Ptr(3)})

	var ids []string
	for i := 0; i < 5; i++ {
		e := testEntry(fmt.Sprintf("req-%d", i))
		if err := s.Write(ctx, e); err != nil {
			t.Fatalf("Failed to write entry %d: %v", i, err)
		}
		ids = append(ids, e.ID)
	}

	got, err := s.IDs(ctx)
	if err != nil {
		t.Fatalf("Failed to list ids: %v", err)
	}
	want := ids[2:]
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestMemorySink_MaxItemSize(t *testing.T) {
	ctx := context.Background()
	s := setupMemorySink(t, MemoryConfig{MaxItemSize: int64Ptr(512)})

	if err := s.Write(ctx, testEntry("small")); err != nil {
		t.Fatalf("Failed to write small entry: %v", err)
	}

	big := testEntry("big")
	big.Tokens = map[string]string{"access_token": strings.Repeat("x", 1024)}
	err := s.Write(ctx, big)
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("Expected ErrEntryTooLarge, got %v", err)
	}

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 entry, got %d", n)
	}
}

func TestMemorySink_ByRequestID(t *testing.T) {
	ctx := context.Background()
	s := setupMemorySink(t, MemoryConfig{})

	for _, id := range []string{"req-a", "req-b", "req-a"} {
		if err := s.Write(ctx, testEntry(id)); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}

	entries, err := s.ByRequestID(ctx, "req-a")
	if err != nil {
		t.Fatalf("Failed to query entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.RequestID != "req-a" {
			t.Errorf("Unexpected request id %s", e.RequestID)
		}
	}
}

func TestMemorySink_Pop(t *testing.T) {
	ctx := context.Background()
	s := setupMemorySink(t, MemoryConfig{})

	first := testEntry("req-1")
	second := testEntry("req-2")
	for _, e := range []*Entry{first, second} {
		if err := s.Write(ctx, e); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}

	entries, err := s.Pop(ctx)
	if err != nil {
		t.Fatalf("Failed to pop entries: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != first.ID || entries[1].ID != second.ID {
		t.Fatalf("Unexpected popped entries: %+v", entries)
	}

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty sink after pop, got %d entries", n)
	}
}

func TestMemorySink_File(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/decisions.db"

	s, err := NewMemorySink(ctx, MemoryConfig{Path: path})
	if err != nil {
		t.Fatalf("Failed to create memory sink: %v", err)
	}
	e := testEntry("req-1")
	if err := s.Write(ctx, e); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Failed to close sink: %v", err)
	}

	reopened := setupMemorySink(t, MemoryConfig{Path: path})
	if _, err := reopened.Get(ctx, e.ID); err != nil {
		t.Errorf("Expected entry to survive reopen: %v", err)
	}
}
