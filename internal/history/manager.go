// Package history implements the conversation history manager: the façade
// composing the file store and the message cache. It owns message
// construction, append and dedup logic, and metadata bookkeeping. The
// manager is the sole writer; the store and cache are internal
// collaborators with no independent lifecycle.
package history

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pbellet/sessionlog/internal/cache"
	"github.com/pbellet/sessionlog/internal/metrics"
	"github.com/pbellet/sessionlog/internal/store"
	"github.com/pbellet/sessionlog/pkg/conversation"
)

// DedupWindow is the timestamp window within which a message with the same
// type and identical content is judged a retry of an already-persisted turn.
const DedupWindow = 5 * time.Second

// Options configures a Manager. The zero value is usable.
type Options struct {
	// Logger receives skip, drop, and fallback warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Metrics receives pipeline counters. Nil disables recording.
	Metrics *metrics.Metrics

	// Version is stamped on new messages. Defaults to
	// conversation.FormatVersion.
	Version string

	// UserType is stamped on new messages. Defaults to
	// conversation.DefaultUserType.
	UserType string

	// Now is injectable for deterministic testing. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Version == "" {
		o.Version = conversation.FormatVersion
	}
	if o.UserType == "" {
		o.UserType = conversation.DefaultUserType
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager composes the store and the cache. All operations are safe to call
// for arbitrary session ids; the append+metadata-update sequence is
// serialized per session so concurrent call sites cannot race the metadata
// read-modify-write.
type Manager struct {
	store   *store.Store
	cache   *cache.Cache
	logger  *slog.Logger
	metrics *metrics.Metrics

	version  string
	userType string
	cwd      string
	now      func() time.Time

	// locks serializes append+metadata-update per session.
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	subs *subscribers
}

// NewManager creates a manager over the given store and cache.
func NewManager(st *store.Store, c *cache.Cache, opts Options) *Manager {
	opts.defaults()
	cwd, _ := os.Getwd()
	return &Manager{
		store:    st,
		cache:    c,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		version:  opts.Version,
		userType: opts.UserType,
		cwd:      cwd,
		now:      opts.Now,
		locks:    make(map[string]*sync.Mutex),
		subs:     newSubscribers(opts.Logger),
	}
}

// sessionLock returns the mutex serializing writes for one session.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// CreateSession allocates a new session and seeds the cache for it.
func (m *Manager) CreateSession(title string) (string, error) {
	sessionID, err := m.store.CreateSession(title)
	if err != nil {
		return "", err
	}
	m.cache.SetMessages(sessionID, nil)
	if meta, err := m.store.ReadMetadata(sessionID); err == nil {
		m.cache.SetMetadata(sessionID, meta)
	}
	return sessionID, nil
}

// CreateMessage is pure construction, no I/O: it stamps identity, timestamp,
// and the environment snapshot onto the given payload.
func (m *Manager) CreateMessage(typ conversation.MessageType, payload conversation.Payload, parentUUID *string, sessionID string) conversation.Message {
	return conversation.Message{
		UUID:       uuid.NewString(),
		ParentUUID: parentUUID,
		SessionID:  sessionID,
		Type:       typ,
		Payload:    payload,
		Timestamp:  m.now(),
		CWD:        m.cwd,
		UserType:   m.userType,
		Version:    m.version,
	}
}

// AddMessage appends the message to the session log, updates the cache
// incrementally, and updates the session metadata. If the message is a
// summary, the metadata's summary pointer is advanced to it.
func (m *Manager) AddMessage(sessionID string, msg conversation.Message) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.addLocked(sessionID, msg)
}

// addLocked performs the append+metadata-update sequence. Callers hold the
// session lock. Any write failure invalidates the cache entry so the next
// read re-derives truth from disk.
func (m *Manager) addLocked(sessionID string, msg conversation.Message) error {
	if err := m.store.AppendMessage(sessionID, msg); err != nil {
		m.cache.Invalidate(sessionID)
		return err
	}
	m.cache.Append(sessionID, msg)

	meta, err := m.store.UpdateMetadata(sessionID, func(meta *conversation.Metadata) {
		index := meta.MessageCount
		meta.MessageCount++
		meta.Updated = m.now()
		if conversation.IsSummary(msg) {
			u := msg.UUID
			t := msg.Timestamp
			meta.HasSummary = true
			meta.LastSummaryUUID = &u
			meta.LastSummaryTime = &t
			meta.LastSummaryIndex = &index
		}
	})
	if err != nil {
		m.cache.Invalidate(sessionID)
		return err
	}
	m.cache.SetMetadata(sessionID, meta)

	m.metrics.RecordAppend()
	m.subs.publish(sessionID, msg)
	return nil
}

// AddMessageWithDeduplication appends the message unless it duplicates an
// already-persisted one. A message is a duplicate if its uuid exactly
// matches an existing message, or if an existing message has the same type,
// identical content, and a timestamp within DedupWindow. Duplicates are
// dropped with a warning, not an error: retried persistence of the same
// logical turn must not create visible duplicate history.
//
// The content+window heuristic is not a true idempotency guarantee; callers
// that need one should reuse the original uuid so the exact-match path
// applies.
func (m *Manager) AddMessageWithDeduplication(sessionID string, msg conversation.Message) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.messagesLocked(sessionID)
	if err != nil {
		return err
	}

	if reason, dup := findDuplicate(existing, msg); dup {
		m.logger.Warn("history: dropping duplicate message",
			"session", sessionID,
			"uuid", msg.UUID,
			"reason", reason,
		)
		m.metrics.RecordDedupDrop()
		return nil
	}

	return m.addLocked(sessionID, msg)
}

// findDuplicate reports whether msg duplicates one of existing, and why.
func findDuplicate(existing []conversation.Message, msg conversation.Message) (string, bool) {
	for i := range existing {
		if existing[i].UUID == msg.UUID {
			return "uuid match", true
		}
	}
	for i := range existing {
		if existing[i].Type != msg.Type {
			continue
		}
		delta := msg.Timestamp.Sub(existing[i].Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= DedupWindow && existing[i].Payload.Equal(msg.Payload) {
			return "content match within window", true
		}
	}
	return "", false
}

// GetMessages returns the session's messages, cache-first.
func (m *Manager) GetMessages(sessionID string) ([]conversation.Message, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.messagesLocked(sessionID)
}

func (m *Manager) messagesLocked(sessionID string) ([]conversation.Message, error) {
	if msgs, ok := m.cache.GetMessages(sessionID); ok {
		m.metrics.RecordCacheHit()
		return msgs, nil
	}
	m.metrics.RecordCacheMiss()

	msgs, err := m.store.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	m.cache.SetMessages(sessionID, msgs)
	return msgs, nil
}

// GetMetadata returns the session's metadata record, cache-first.
func (m *Manager) GetMetadata(sessionID string) (conversation.Metadata, error) {
	if meta, ok := m.cache.GetMetadata(sessionID); ok {
		m.metrics.RecordCacheHit()
		return meta, nil
	}
	m.metrics.RecordCacheMiss()

	meta, err := m.store.ReadMetadata(sessionID)
	if err != nil {
		return conversation.Metadata{}, err
	}
	m.cache.SetMetadata(sessionID, meta)
	return meta, nil
}

// MessagesSince streams the session log from the message with the given
// uuid onward, bypassing the cache. The bool return reports whether the
// uuid was found in the log.
func (m *Manager) MessagesSince(sessionID, fromUUID string) ([]conversation.Message, bool, error) {
	return m.store.LoadSessionSince(sessionID, fromUUID)
}

// ListSessions returns all session metadata, sorted by Updated descending.
func (m *Manager) ListSessions() ([]conversation.Metadata, error) {
	return m.store.ListSessions()
}

// DeleteSession removes the session from disk and purges every cache and
// subscription referencing it. Deleting a missing session is a no-op.
func (m *Manager) DeleteSession(sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.DeleteSession(sessionID); err != nil {
		return err
	}
	m.cache.Invalidate(sessionID)
	m.subs.closeSession(sessionID)

	// Drop the lock entry so deleted sessions do not pin a mutex forever.
	// A racing writer holding the old mutex fails on the missing directory.
	m.mu.Lock()
	delete(m.locks, sessionID)
	m.mu.Unlock()
	return nil
}

// UpdateSessionTitle renames the session.
func (m *Manager) UpdateSessionTitle(sessionID, title string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	meta, err := m.store.UpdateMetadata(sessionID, func(meta *conversation.Metadata) {
		meta.Title = title
		meta.Updated = m.now()
	})
	if err != nil {
		m.cache.Invalidate(sessionID)
		return err
	}
	m.cache.SetMetadata(sessionID, meta)
	return nil
}

// Subscribe registers a live feed of messages appended to the session. The
// returned cancel function must be called to release the subscription; the
// channel is closed on cancel and on session deletion.
func (m *Manager) Subscribe(sessionID string) (<-chan conversation.Message, func()) {
	return m.subs.add(sessionID)
}
