package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "token"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	if err := m.Set(ctx, "token", "abc123", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, "token")
	if err != nil || got != "abc123" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "token", "abc123", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(61 * time.Second)
	if _, err := m.Get(ctx, "token"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry miss, got %v", err)
	}
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	now = now.Add(24 * time.Hour)
	if got, err := m.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestNewFallsBackToMemory(t *testing.T) {
	if _, ok := New("").(*Memory); !ok {
		t.Fatal("empty url should yield the in-process cache")
	}
	if _, ok := New("://not-a-url").(*Memory); !ok {
		t.Fatal("malformed url should yield the in-process cache")
	}
}
