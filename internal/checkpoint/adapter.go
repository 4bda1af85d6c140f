// Package checkpoint reconciles externally-produced ordered turn lists into
// the chain-linked session log. The reasoning engine hands over full turn
// lists that may already be partially persisted; the adapter derives parent
// links and persists only the unseen suffix.
package checkpoint

import (
	"github.com/pbellet/sessionlog/pkg/conversation"
)

// Turn is one entry of an externally-produced conversation. Role-specific
// payload (tool-call descriptors, correlation ids, model and usage
// metadata) is carried through verbatim, not interpreted.
type Turn struct {
	Type    conversation.MessageType
	Payload conversation.Payload
}

// History is the slice of the history manager the adapter depends on.
type History interface {
	CreateMessage(typ conversation.MessageType, payload conversation.Payload, parentUUID *string, sessionID string) conversation.Message
	AddMessage(sessionID string, msg conversation.Message) error
	AddMessageWithDeduplication(sessionID string, msg conversation.Message) error
	GetMessages(sessionID string) ([]conversation.Message, error)
}

// Adapter bridges turn lists into the persisted chain.
type Adapter struct {
	history History
}

// NewAdapter creates an adapter over the given history.
func NewAdapter(h History) *Adapter {
	return &Adapter{history: h}
}

// SaveMessage persists a single turn, deriving its parent from the current
// last persisted message of the session.
func (a *Adapter) SaveMessage(sessionID string, typ conversation.MessageType, payload conversation.Payload) error {
	existing, err := a.history.GetMessages(sessionID)
	if err != nil {
		return err
	}

	var parent *string
	if len(existing) > 0 {
		p := existing[len(existing)-1].UUID
		parent = &p
	}

	msg := a.history.CreateMessage(typ, payload, parent, sessionID)
	return a.history.AddMessageWithDeduplication(sessionID, msg)
}

// SaveCompleteConversation persists the suffix of turns not yet present in
// the session. Turns up to the already-persisted count are assumed
// identical and skipped. A local running parent pointer links the new
// messages, so linking cost is linear in the number of new turns.
func (a *Adapter) SaveCompleteConversation(sessionID string, turns []Turn) error {
	existing, err := a.history.GetMessages(sessionID)
	if err != nil {
		return err
	}
	if len(turns) <= len(existing) {
		return nil
	}

	var lastUUID *string
	if len(existing) > 0 {
		p := existing[len(existing)-1].UUID
		lastUUID = &p
	}

	// Replay protection is the persisted-count diff above, not the content
	// dedup heuristic: a batch can legitimately repeat identical turns
	// seconds apart, and dropping one would leave the next turn's parent
	// pointing at a message that was never persisted.
	for _, turn := range turns[len(existing):] {
		msg := a.history.CreateMessage(turn.Type, turn.Payload, lastUUID, sessionID)
		if err := a.history.AddMessage(sessionID, msg); err != nil {
			return err
		}
		u := msg.UUID
		lastUUID = &u
	}
	return nil
}
