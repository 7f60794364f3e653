package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"mealboard/internal/stream"
)

// MaxMessagesPerConversation caps the in-memory message list per
// conversation; oldest messages are evicted first.
const MaxMessagesPerConversation = 200

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is one chat thread. IDs are client-generated until the
// server assigns a canonical id on the first persistence round-trip.
type Conversation struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Message is a single chat turn. Assistant messages start as an empty
// streaming placeholder and are mutated in place as stream events arrive;
// Role and ConversationID never change after creation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content,omitempty"`
	Blocks         []stream.Block `json:"blocks,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	IsStreaming    bool           `json:"is_streaming,omitempty"`
	StatusText     string         `json:"status_text,omitempty"`
}

// Text returns the displayable text of a message: the plain content for
// user messages, the concatenated text blocks for assistant messages.
func (m Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, b := range m.Blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Handle aborts an in-flight chat stream.
type Handle interface {
	Abort()
}

// Callbacks receive decoded stream events for one send. Any callback may
// be nil.
type Callbacks struct {
	OnDelta        func(text, messageID string)
	OnBlocks       func(blocks []stream.Block, messageID string)
	OnStatus       func(code, detail string)
	OnToolStarted  func(name string, data json.RawMessage)
	OnToolProposed func(id string, data json.RawMessage)
	OnToolResult   func(data json.RawMessage)
	OnComplete     func(messageID string)
	OnError        func(code, detail string)
	OnDone         func()
}

// API is the remote authority the store talks to.
type API interface {
	FetchConversations(ctx context.Context) ([]Conversation, error)
	FetchMessages(ctx context.Context, conversationID string) ([]Message, error)
	DeleteConversation(ctx context.Context, id string) error
	StreamChatMessage(ctx context.Context, conversationID, text string, cb Callbacks, titleHint string) (Handle, error)
}

// Snapshot is the persisted shape of the chat state.
type Snapshot struct {
	Conversations        []Conversation       `json:"conversations"`
	Messages             map[string][]Message `json:"messages"`
	ActiveConversationID string               `json:"active_conversation_id,omitempty"`
}

// Persister stores chat snapshots in the durable local store.
type Persister interface {
	SaveChatSnapshot(s Snapshot) error
	LoadChatSnapshot() (*Snapshot, error)
}

// StreamRecorder collects per-stream usage metrics.
type StreamRecorder interface {
	RecordStream(conversationID string, deltaCount int, latency time.Duration, errored bool)
}
