// Package cache provides a TTL-bounded in-memory cache of parsed messages
// and metadata, keyed by session id. It bounds the staleness window against
// out-of-band file changes: entries expire after the TTL regardless of
// mutation history.
package cache

import (
	"sync"
	"time"

	"github.com/pbellet/sessionlog/pkg/conversation"
)

// DefaultTTL bounds how long a cache entry is trusted without re-reading
// the session from disk.
const DefaultTTL = 5 * time.Minute

// entry holds the cached state for one session.
type entry struct {
	messages []conversation.Message
	metadata *conversation.Metadata
	expires  time.Time
}

// Cache is a concurrency-safe TTL cache of session messages and metadata.
// The `now` function is injectable for deterministic testing.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// New creates a cache with the given TTL. A non-positive ttl falls back to
// DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// valid reports whether e exists and has not expired. Callers hold the lock.
func (c *Cache) valid(e *entry) bool {
	return e != nil && c.now().Before(e.expires)
}

// Valid reports whether the session has a live cache entry.
func (c *Cache) Valid(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valid(c.entries[sessionID])
}

// GetMessages returns the cached message slice for the session. The bool
// return is false when no live entry holds messages. The returned slice is
// a copy: callers may not observe later appends through it.
func (c *Cache) GetMessages(sessionID string) ([]conversation.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.entries[sessionID]
	if !c.valid(e) || e.messages == nil {
		return nil, false
	}
	out := make([]conversation.Message, len(e.messages))
	copy(out, e.messages)
	return out, true
}

// SetMessages caches the message slice for the session and resets its TTL.
func (c *Cache) SetMessages(sessionID string, messages []conversation.Message) {
	cp := make([]conversation.Message, len(messages))
	copy(cp, messages)

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[sessionID]
	if !c.valid(e) {
		e = &entry{}
		c.entries[sessionID] = e
	}
	e.messages = cp
	e.expires = c.now().Add(c.ttl)
}

// Append pushes one message onto an existing live entry instead of forcing
// a full reload. It is a no-op when the session has no live message cache;
// the next read re-derives truth from disk.
func (c *Cache) Append(sessionID string, msg conversation.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[sessionID]
	if !c.valid(e) || e.messages == nil {
		return
	}
	e.messages = append(e.messages, msg)
	e.expires = c.now().Add(c.ttl)
}

// GetMetadata returns the cached metadata for the session, if live.
func (c *Cache) GetMetadata(sessionID string) (conversation.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.entries[sessionID]
	if !c.valid(e) || e.metadata == nil {
		return conversation.Metadata{}, false
	}
	return *e.metadata, true
}

// SetMetadata caches the metadata record for the session and resets its TTL.
func (c *Cache) SetMetadata(sessionID string, meta conversation.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[sessionID]
	if !c.valid(e) {
		e = &entry{}
		c.entries[sessionID] = e
	}
	e.metadata = &meta
	e.expires = c.now().Add(c.ttl)
}

// Invalidate drops the entry for one session.
func (c *Cache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Sweep removes expired entries and returns the number removed. Intended to
// be called periodically by the janitor; reads already treat expired entries
// as misses, so sweeping only reclaims memory.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
