package cache

import (
	"testing"
	"time"

	"github.com/pbellet/sessionlog/pkg/conversation"
)

// fixedClock lets tests advance time deterministically.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(ttl time.Duration) (*Cache, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New(ttl)
	c.now = clock.now
	return c, clock
}

func msg(uuid string) conversation.Message {
	return conversation.Message{UUID: uuid, Type: conversation.TypeUser}
}

func TestCache_SetGetMessages(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(time.Minute)

	if _, ok := c.GetMessages("s1"); ok {
		t.Fatal("empty cache must miss")
	}

	c.SetMessages("s1", []conversation.Message{msg("u1")})
	got, ok := c.GetMessages("s1")
	if !ok {
		t.Fatal("expected hit after SetMessages")
	}
	if len(got) != 1 || got[0].UUID != "u1" {
		t.Errorf("got %v, want [u1]", got)
	}
	if !c.Valid("s1") {
		t.Error("Valid must be true for a live entry")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(time.Minute)

	c.SetMessages("s1", []conversation.Message{msg("u1")})
	clock.advance(59 * time.Second)
	if !c.Valid("s1") {
		t.Fatal("entry expired early")
	}

	clock.advance(2 * time.Second)
	if c.Valid("s1") {
		t.Error("entry must be invalid after TTL, regardless of mutation history")
	}
	if _, ok := c.GetMessages("s1"); ok {
		t.Error("expired entry must miss")
	}
}

func TestCache_AppendPushesIncrementally(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(time.Minute)

	c.SetMessages("s1", []conversation.Message{msg("u1")})
	c.Append("s1", msg("u2"))

	got, ok := c.GetMessages("s1")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 2 || got[1].UUID != "u2" {
		t.Errorf("append not reflected: got %d messages", len(got))
	}
}

func TestCache_AppendWithoutEntryIsNoop(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(time.Minute)

	c.Append("s1", msg("u1"))
	if _, ok := c.GetMessages("s1"); ok {
		t.Error("append to a cold session must not create an entry")
	}
}

func TestCache_AppendAfterExpiryIsNoop(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(time.Minute)

	c.SetMessages("s1", []conversation.Message{msg("u1")})
	clock.advance(2 * time.Minute)
	c.Append("s1", msg("u2"))

	if _, ok := c.GetMessages("s1"); ok {
		t.Error("append must not resurrect an expired entry")
	}
}

func TestCache_Metadata(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(time.Minute)

	meta := conversation.Metadata{SessionID: "s1", MessageCount: 7}
	c.SetMetadata("s1", meta)

	got, ok := c.GetMetadata("s1")
	if !ok {
		t.Fatal("expected metadata hit")
	}
	if got.MessageCount != 7 {
		t.Errorf("messageCount = %d, want 7", got.MessageCount)
	}
}

func TestCache_Invalidate(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(time.Minute)

	c.SetMessages("s1", []conversation.Message{msg("u1")})
	c.SetMessages("s2", []conversation.Message{msg("u2")})

	c.Invalidate("s1")
	if _, ok := c.GetMessages("s1"); ok {
		t.Error("s1 must miss after Invalidate")
	}
	if _, ok := c.GetMessages("s2"); !ok {
		t.Error("s2 must be unaffected")
	}

	c.InvalidateAll()
	if _, ok := c.GetMessages("s2"); ok {
		t.Error("s2 must miss after InvalidateAll")
	}
}

func TestCache_Sweep(t *testing.T) {
	t.Parallel()
	c, clock := newTestCache(time.Minute)

	c.SetMessages("old", []conversation.Message{msg("u1")})
	clock.advance(2 * time.Minute)
	c.SetMessages("fresh", []conversation.Message{msg("u2")})

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.GetMessages("fresh"); !ok {
		t.Error("fresh entry must survive the sweep")
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	c, _ := newTestCache(time.Minute)

	c.SetMessages("s1", []conversation.Message{msg("u1")})
	got, _ := c.GetMessages("s1")
	got[0].UUID = "mutated"

	again, _ := c.GetMessages("s1")
	if again[0].UUID != "u1" {
		t.Error("caller mutation leaked into the cache")
	}
}
