package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "bonjour", "fr", "en", "basic", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := c.Get(ctx, "bonjour", "fr", "en", "basic")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil || entry.TranslatedText != "hello" {
		t.Fatalf("expected hit with %q, got %+v", "hello", entry)
	}

	miss, _ := c.Get(ctx, "autre texte", "fr", "en", "basic")
	if miss != nil {
		t.Errorf("expected miss, got %+v", miss)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	if err := c.Set(ctx, "bonjour", "fr", "en", "basic", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	entry, _ := c.Get(ctx, "bonjour", "fr", "en", "basic")
	if entry != nil {
		t.Error("entry should have expired")
	}

	// The expired entry is still held until a sweep runs.
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 before sweep", c.Len())
	}
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after sweep", c.Len())
	}
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	if err := c.Set(ctx, "bonjour", "fr", "en", "basic", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if removed := c.Sweep(); removed != 0 {
		t.Errorf("Sweep() = %d, want 0", removed)
	}

	entry, _ := c.Get(ctx, "bonjour", "fr", "en", "basic")
	if entry == nil {
		t.Fatal("zero-TTL entries must not expire")
	}
}
