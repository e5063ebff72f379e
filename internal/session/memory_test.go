package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "active", "tok-1", time.Hour); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "active")
	if err != nil {
		t.Fatal(err)
	}
	if got != "tok-1" {
		t.Errorf("Get() = %q, want tok-1", got)
	}

	// Set replaces, Delete removes, deleting twice is fine.
	if err := s.Set(ctx, "active", "tok-2", time.Hour); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, "active"); got != "tok-2" {
		t.Errorf("Get() after replace = %q, want tok-2", got)
	}
	if err := s.Delete(ctx, "active"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "active"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
	if _, err := s.Get(ctx, "active"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	if err := s.Set(ctx, "active", "tok-1", time.Hour); err != nil {
		t.Fatal(err)
	}

	// Just inside the TTL.
	now = now.Add(time.Hour)
	if got, err := s.Get(ctx, "active"); err != nil || got != "tok-1" {
		t.Errorf("Get() at TTL boundary = %q, %v", got, err)
	}

	// Past the TTL the entry is gone, and stays gone even if the clock
	// rolls back.
	now = now.Add(time.Second)
	if _, err := s.Get(ctx, "active"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() past TTL error = %v, want ErrNotFound", err)
	}
	now = now.Add(-time.Minute)
	if _, err := s.Get(ctx, "active"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after lazy removal error = %v, want ErrNotFound", err)
	}
}
