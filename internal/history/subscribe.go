package history

import (
	"log/slog"
	"sync"

	"github.com/pbellet/sessionlog/pkg/conversation"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this starts losing messages.
const subscriberBuffer = 16

// subscribers fans appended messages out to live-tail consumers.
type subscribers struct {
	mu     sync.Mutex
	logger *slog.Logger
	nextID int
	subs   map[string]map[int]chan conversation.Message
}

func newSubscribers(logger *slog.Logger) *subscribers {
	return &subscribers{
		logger: logger,
		subs:   make(map[string]map[int]chan conversation.Message),
	}
}

// add registers a subscriber for one session and returns its channel plus a
// cancel function. Cancel is idempotent.
func (s *subscribers) add(sessionID string) (<-chan conversation.Message, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan conversation.Message, subscriberBuffer)
	if s.subs[sessionID] == nil {
		s.subs[sessionID] = make(map[int]chan conversation.Message)
	}
	s.subs[sessionID][id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[sessionID][id]; ok {
			delete(s.subs[sessionID], id)
			close(ch)
		}
	}
	return ch, cancel
}

// publish delivers msg to every subscriber of the session. Delivery is
// non-blocking: a full subscriber drops the message rather than stalling
// the append path.
func (s *subscribers) publish(sessionID string, msg conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subs[sessionID] {
		select {
		case ch <- msg:
		default:
			s.logger.Warn("history: slow subscriber, dropping message",
				"session", sessionID,
				"subscriber", id,
			)
		}
	}
}

// closeSession closes and removes every subscriber of the session.
func (s *subscribers) closeSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subs[sessionID] {
		delete(s.subs[sessionID], id)
		close(ch)
	}
	delete(s.subs, sessionID)
}
