package conversation

import (
	"bytes"
	"encoding/json"
	"strings"
)

// BlockType discriminates the variant stored in a Block.
type BlockType string

// Supported block types.
const (
	BlockText       BlockType = "text"
	BlockToolCall   BlockType = "tool_call"
	BlockToolResult BlockType = "tool_result"
	BlockRaw        BlockType = "raw"
)

// Block is a flat union representing one piece of structured content riding
// on a message. The Type field discriminates which fields are meaningful.
// Raw blocks carry opaque JSON for forward compatibility: the persistence
// layer round-trips them without interpretation.
type Block struct {
	Type   BlockType       `json:"type"`
	Text   string          `json:"text,omitempty"`
	ID     string          `json:"id,omitempty"`   // tool-call correlation id
	Name   string          `json:"name,omitempty"` // tool name
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewTextBlock creates a text block.
func NewTextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// NewToolCallBlock creates a tool-call block.
func NewToolCallBlock(id, name string, args json.RawMessage) Block {
	return Block{Type: BlockToolCall, ID: id, Name: name, Args: args}
}

// NewToolResultBlock creates a tool-result block correlated to a tool call.
func NewToolResultBlock(id, name string, result json.RawMessage) Block {
	return Block{Type: BlockToolResult, ID: id, Name: name, Result: result}
}

// NewRawBlock creates a raw block carrying opaque JSON data.
func NewRawBlock(data json.RawMessage) Block {
	cp := make(json.RawMessage, len(data))
	copy(cp, data)
	return Block{Type: BlockRaw, Data: cp}
}

// Usage tracks token consumption reported by the model for a turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Payload is the role-specific body of a message. Content carries plain
// text; Blocks carries tool calls, tool results, and opaque data. Model and
// Usage are present on assistant turns when the producer reports them.
type Payload struct {
	Role    string  `json:"role"`
	Content string  `json:"content,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
	Model   string  `json:"model,omitempty"`
	Usage   *Usage  `json:"usage,omitempty"`
}

// TextPayload builds a plain-text payload for the given role.
func TextPayload(role, content string) Payload {
	return Payload{Role: role, Content: content}
}

// Equal reports whether two payloads are identical on the wire. Comparison
// goes through the serialized form so opaque blocks compare by bytes.
func (p Payload) Equal(other Payload) bool {
	a, err := json.Marshal(p)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// SummaryMarker prefixes the content of every summary message. Recovery
// scans recognize summaries by this marker, so it must never change for
// logs already on disk.
const SummaryMarker = "[Conversation Summary]"

// SummaryPayload wraps raw summary text in the marker block.
func SummaryPayload(summary string) Payload {
	var b strings.Builder
	b.WriteString(SummaryMarker)
	b.WriteString("\n")
	b.WriteString(summary)
	return Payload{Role: "assistant", Content: b.String()}
}

// IsSummary reports whether m is a summary message: a synthetic assistant
// message produced by compression that stands in for earlier history.
func IsSummary(m Message) bool {
	return m.Type == TypeAssistant && strings.HasPrefix(m.Payload.Content, SummaryMarker)
}
