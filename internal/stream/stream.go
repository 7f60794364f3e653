package stream

import "encoding/json"

// Block is one tagged unit of assistant message content. Text blocks carry
// the accumulated text; richer blocks (tool results, proposals) keep their
// payload as raw JSON so the UI layer decides how to render them.
type Block struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TextBlock builds a plain text block.
func TextBlock(text string) Block {
	return Block{Type: "text", Text: text}
}

// EventKind identifies a decoded stream event.
type EventKind string

const (
	EventDelta        EventKind = "delta"
	EventBlocks       EventKind = "blocks"
	EventStatus       EventKind = "status"
	EventToolStarted  EventKind = "tool_started"
	EventToolProposed EventKind = "tool_proposed"
	EventToolResult   EventKind = "tool_result"
	EventComplete     EventKind = "complete"
	EventError        EventKind = "error"
	EventDone         EventKind = "done"
)

// Event is a single typed event decoded from the chat stream.
// Which fields are populated depends on Kind.
type Event struct {
	Kind      EventKind
	MessageID string
	Text      string
	Blocks    []Block
	Code      string
	Detail    string
	ToolName  string
	ToolID    string
	Data      json.RawMessage
}
