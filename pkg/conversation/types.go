// Package conversation defines the data contract shared by the store, the
// cache, the history manager, and every downstream consumer. It mirrors the
// on-disk JSONL format exactly: field names here are the interop surface.
package conversation

import "time"

// MessageType identifies who produced a message.
type MessageType string

// Supported message types.
const (
	TypeUser      MessageType = "user"
	TypeAssistant MessageType = "assistant"
	TypeSystem    MessageType = "system"
)

// Valid reports whether t is one of the supported message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeUser, TypeAssistant, TypeSystem:
		return true
	}
	return false
}

// DefaultUserType is the userType stamped on messages and metadata when the
// caller does not override it.
const DefaultUserType = "external"

// FormatVersion is written into new messages and metadata. It identifies the
// writer, not the schema: readers never branch on it.
const FormatVersion = "1.0"

// Message is one entry in a session's append-only log. Serialized as a single
// compact JSON object per line in messages.jsonl.
type Message struct {
	UUID        string      `json:"uuid"`
	ParentUUID  *string     `json:"parentUuid"`
	SessionID   string      `json:"sessionId"`
	Type        MessageType `json:"type"`
	Payload     Payload     `json:"message"`
	Timestamp   time.Time   `json:"timestamp"`
	CWD         string      `json:"cwd"`
	IsSidechain bool        `json:"isSidechain"`
	UserType    string      `json:"userType"`
	Version     string      `json:"version"`
}

// Metadata is the per-session record stored as pretty-printed JSON in
// metadata.json.
//
// MessageCount counts every line ever appended to the log. HasSummary and
// the LastSummary* fields are set iff at least one summary message has been
// persisted; they point at the most recent one.
type Metadata struct {
	SessionID        string     `json:"sessionId"`
	Title            string     `json:"title"`
	Created          time.Time  `json:"created"`
	Updated          time.Time  `json:"updated"`
	MessageCount     int        `json:"messageCount"`
	CWD              string     `json:"cwd"`
	Version          string     `json:"version"`
	UserType         string     `json:"userType"`
	HasSummary       bool       `json:"hasSummary"`
	LastSummaryUUID  *string    `json:"lastSummaryUuid"`
	LastSummaryTime  *time.Time `json:"lastSummaryTime"`
	LastSummaryIndex *int       `json:"lastSummaryIndex"`
}
