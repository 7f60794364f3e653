package chat

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mealboard/internal/stream"
)

// streamErrorFallback is shown as the assistant reply when a stream fails
// before any content arrived.
const streamErrorFallback = "Sorry, something went wrong while replying. Please try again."

// Store is the single source of truth for conversations and messages.
// All mutations go through its methods; the UI reads derived copies and
// listens on Changed for re-render signals. Only one stream is active per
// store; starting a new send supersedes the previous stream and its late
// events are dropped by a per-send token check.
type Store struct {
	mu       sync.Mutex
	api      API
	persist  Persister      // optional
	recorder StreamRecorder // optional

	hydrated      bool
	conversations []Conversation // most recent first
	messages      map[string][]Message
	activeID      string
	sending       bool
	lastErr       string

	current *streamSession
	changed chan struct{}
}

// streamSession is the cancellation token for one send. Every callback
// checks that it still owns the store before mutating state.
type streamSession struct {
	handle         Handle
	conversationID string
	placeholderID  string
	localID        string
	reassigned     bool

	text       strings.Builder
	deltaCount int
	gotContent bool
	errored    bool
	recorded   bool
	started    time.Time
}

// NewStore creates a chat store. persist and recorder may be nil.
func NewStore(api API, persist Persister, recorder StreamRecorder) *Store {
	return &Store{
		api:      api,
		persist:  persist,
		recorder: recorder,
		messages: make(map[string][]Message),
		changed:  make(chan struct{}, 1),
	}
}

// Hydrate restores the persisted snapshot. It must complete before the
// store is handed to a frontend; it is a no-op without a persister.
func (s *Store) Hydrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hydrated {
		return nil
	}
	if s.persist == nil {
		s.hydrated = true
		return nil
	}

	snap, err := s.persist.LoadChatSnapshot()
	if err != nil {
		return err
	}
	if snap != nil {
		s.conversations = snap.Conversations
		s.activeID = snap.ActiveConversationID
		for id, msgs := range snap.Messages {
			s.messages[id] = capMessages(msgs)
		}
	}
	s.hydrated = true
	s.notifyLocked()
	return nil
}

// Hydrated reports whether the persisted snapshot has been restored.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Changed signals state changes; notifications are coalesced.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

// Conversations returns a copy of the conversation list, most recent first.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Messages returns a deep copy of the message list for a conversation.
// Block slices are cloned too: the stream callbacks mutate block text in
// place, so a shared backing array would race with readers.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages[conversationID])
}

// ActiveConversationID returns the currently active conversation id.
func (s *Store) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Sending reports whether a stream is currently in flight.
func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Err returns the last store-level error message, empty when healthy.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SendMessage appends the user message plus an empty streaming assistant
// placeholder and opens the reply stream. Empty or whitespace-only input
// is a no-op. Stream failures never surface as errors here; they are
// captured into the store error state.
func (s *Store) SendMessage(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()

	// A new send supersedes any in-flight stream.
	staleHandle, staleRecord := s.releaseStreamLocked()

	now := time.Now()
	conv := s.ensureActiveConversationLocked(now)
	if conv.Title == "" {
		conv.Title = titleHint(text)
	}
	conv.LastMessageAt = now
	conversationID := conv.ID
	hint := conv.Title
	s.moveToFrontLocked(conversationID)

	userMsg := Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        text,
		CreatedAt:      now,
	}
	placeholder := Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Blocks:         []stream.Block{stream.TextBlock("")},
		CreatedAt:      now,
		IsStreaming:    true,
	}
	// One atomic state update: user message and placeholder land together.
	s.appendMessagesLocked(conversationID, userMsg, placeholder)

	sess := &streamSession{
		conversationID: conversationID,
		placeholderID:  placeholder.ID,
		localID:        placeholder.ID,
		started:        now,
	}
	s.current = sess
	s.sending = true
	s.lastErr = ""

	s.persistLocked()
	s.notifyLocked()
	s.mu.Unlock()

	if staleRecord != nil {
		staleRecord()
	}
	if staleHandle != nil {
		staleHandle.Abort()
	}

	handle, err := s.api.StreamChatMessage(ctx, conversationID, text, s.callbacksFor(sess), hint)

	s.mu.Lock()
	if s.current != sess {
		// Superseded while the request was being opened.
		s.mu.Unlock()
		if handle != nil {
			go handle.Abort()
		}
		return
	}
	if err != nil {
		s.applyStreamErrorLocked(sess, "transport", err.Error())
		record := s.finishStreamLocked(sess)
		s.notifyLocked()
		s.mu.Unlock()
		if record != nil {
			record()
		}
		return
	}
	sess.handle = handle
	s.mu.Unlock()
}

// callbacksFor binds stream callbacks to one send's cancellation token.
func (s *Store) callbacksFor(sess *streamSession) Callbacks {
	return Callbacks{
		OnDelta: func(text, messageID string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.current != sess {
				return
			}
			s.reassignIDLocked(sess, messageID)
			m := s.placeholderLocked(sess)
			if m == nil {
				return
			}
			sess.text.WriteString(text)
			sess.deltaCount++
			sess.gotContent = true
			setFirstTextBlock(m, sess.text.String())
			m.StatusText = ""
			s.notifyLocked()
		},
		OnBlocks: func(blocks []stream.Block, messageID string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.current != sess {
				return
			}
			s.reassignIDLocked(sess, messageID)
			m := s.placeholderLocked(sess)
			if m == nil {
				return
			}
			m.Blocks = append(m.Blocks, blocks...)
			if len(blocks) > 0 {
				sess.gotContent = true
			}
			s.notifyLocked()
		},
		OnStatus: func(code, detail string) {
			s.setStatusText(sess, code)
		},
		OnToolStarted: func(name string, data json.RawMessage) {
			s.setStatusText(sess, name)
		},
		OnToolProposed: func(id string, data json.RawMessage) {
			s.appendStructuredBlock(sess, stream.Block{Type: "tool_proposal", Data: data})
		},
		OnToolResult: func(data json.RawMessage) {
			s.appendStructuredBlock(sess, stream.Block{Type: "tool_result", Data: data})
		},
		OnComplete: func(messageID string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.current != sess {
				return
			}
			s.reassignIDLocked(sess, messageID)
			if m := s.placeholderLocked(sess); m != nil {
				m.IsStreaming = false
				m.StatusText = ""
			}
			if conv := s.conversationLocked(sess.conversationID); conv != nil {
				conv.LastMessageAt = time.Now()
			}
			s.notifyLocked()
		},
		OnError: func(code, detail string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.current != sess {
				return
			}
			s.applyStreamErrorLocked(sess, code, detail)
			s.notifyLocked()
		},
		OnDone: func() {
			s.mu.Lock()
			if s.current != sess {
				s.mu.Unlock()
				return
			}
			record := s.finishStreamLocked(sess)
			s.notifyLocked()
			s.mu.Unlock()
			if record != nil {
				record()
			}
		},
	}
}

func (s *Store) setStatusText(sess *streamSession, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess {
		return
	}
	if m := s.placeholderLocked(sess); m != nil {
		m.StatusText = FriendlyStatus(name)
	}
	s.notifyLocked()
}

func (s *Store) appendStructuredBlock(sess *streamSession, b stream.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess {
		return
	}
	if m := s.placeholderLocked(sess); m != nil {
		m.Blocks = append(m.Blocks, b)
		sess.gotContent = true
	}
	s.notifyLocked()
}

// applyStreamErrorLocked records a server-signaled or transport error.
// Partial content already streamed is preserved; an empty placeholder is
// replaced with a user-visible error block instead.
func (s *Store) applyStreamErrorLocked(sess *streamSession, code, detail string) {
	sess.errored = true
	if detail == "" {
		detail = code
	}
	s.lastErr = detail
	if m := s.placeholderLocked(sess); m != nil && !sess.gotContent {
		m.Blocks = []stream.Block{stream.TextBlock(streamErrorFallback)}
	}
}

// finishStreamLocked is the terminal transition for a send; it runs for
// complete, error, and cancel alike. The returned closure records the
// stream metric and must be invoked after the lock is released: the
// recorder writes to SQLite and must not stall the store.
func (s *Store) finishStreamLocked(sess *streamSession) func() {
	if m := s.placeholderLocked(sess); m != nil {
		m.IsStreaming = false
		m.StatusText = ""
	}
	s.sending = false
	if s.current == sess {
		s.current = nil
	}
	s.persistLocked()

	if s.recorder == nil || sess.recorded {
		return nil
	}
	sess.recorded = true
	latency := time.Since(sess.started)
	return func() {
		s.recorder.RecordStream(sess.conversationID, sess.deltaCount, latency, sess.errored)
	}
}

// CancelPendingAssistantReply aborts the in-flight stream and freezes the
// placeholder content as-is. Safe to call with no active stream.
func (s *Store) CancelPendingAssistantReply() {
	s.mu.Lock()
	handle, record := s.releaseStreamLocked()
	s.notifyLocked()
	s.mu.Unlock()

	if record != nil {
		record()
	}
	if handle != nil {
		handle.Abort()
	}
}

// releaseStreamLocked detaches the current stream, freezing its placeholder.
// The returned handle and metric closure must be used outside the lock.
func (s *Store) releaseStreamLocked() (Handle, func()) {
	sess := s.current
	if sess == nil {
		s.sending = false
		return nil, nil
	}
	handle := sess.handle
	record := s.finishStreamLocked(sess)
	s.current = nil
	s.sending = false
	return handle, record
}

// SwitchConversation sets the active conversation and lazily loads its
// history when it is not already cached.
func (s *Store) SwitchConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	s.activeID = id
	_, cached := s.messages[id]
	s.persistLocked()
	s.notifyLocked()
	s.mu.Unlock()

	if cached {
		return nil
	}

	msgs, err := s.api.FetchMessages(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.notifyLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.messages[id] = capMessages(msgs)
	s.persistLocked()
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// DeleteConversation deletes remotely, then locally. When the deleted
// conversation was active, the most recent remaining one becomes active,
// or a fresh one is created if none remain.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.api.DeleteConversation(ctx, id); err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.notifyLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.conversations {
		if c.ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			break
		}
	}
	delete(s.messages, id)

	if s.activeID == id {
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		} else {
			conv := s.newConversationLocked(time.Now())
			s.activeID = conv.ID
		}
	}

	s.persistLocked()
	s.notifyLocked()
	return nil
}

// RefreshConversations replaces the conversation list from the server.
// Cached message histories are kept.
func (s *Store) RefreshConversations(ctx context.Context) error {
	convs, err := s.api.FetchConversations(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.notifyLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = convs
	if s.activeID == "" && len(convs) > 0 {
		s.activeID = convs[0].ID
	}
	s.persistLocked()
	s.notifyLocked()
	return nil
}

// StartConversation creates a fresh local conversation and makes it active.
func (s *Store) StartConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.newConversationLocked(time.Now())
	s.activeID = conv.ID
	s.persistLocked()
	s.notifyLocked()
	return conv.ID
}

// --- locked helpers ---

func (s *Store) ensureActiveConversationLocked(now time.Time) *Conversation {
	if s.activeID != "" {
		if conv := s.conversationLocked(s.activeID); conv != nil {
			return conv
		}
	}
	conv := s.newConversationLocked(now)
	s.activeID = conv.ID
	return conv
}

func (s *Store) newConversationLocked(now time.Time) *Conversation {
	conv := Conversation{
		ID:            uuid.New().String(),
		CreatedAt:     now,
		LastMessageAt: now,
	}
	s.conversations = append([]Conversation{conv}, s.conversations...)
	return &s.conversations[0]
}

func (s *Store) conversationLocked(id string) *Conversation {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return &s.conversations[i]
		}
	}
	return nil
}

func (s *Store) moveToFrontLocked(id string) {
	for i := range s.conversations {
		if s.conversations[i].ID == id && i > 0 {
			conv := s.conversations[i]
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			s.conversations = append([]Conversation{conv}, s.conversations...)
			return
		}
	}
}

func (s *Store) appendMessagesLocked(conversationID string, msgs ...Message) {
	s.messages[conversationID] = capMessages(append(s.messages[conversationID], msgs...))
}

// placeholderLocked finds the streaming placeholder by its current or
// original local id; the server may have rewritten the id mid-stream.
func (s *Store) placeholderLocked(sess *streamSession) *Message {
	msgs := s.messages[sess.conversationID]
	for i := range msgs {
		if msgs[i].ID == sess.placeholderID || msgs[i].ID == sess.localID {
			return &msgs[i]
		}
	}
	return nil
}

// reassignIDLocked adopts the server-assigned canonical message id. The
// rewrite happens at most once per stream.
func (s *Store) reassignIDLocked(sess *streamSession, messageID string) {
	if messageID == "" || sess.reassigned || messageID == sess.placeholderID {
		return
	}
	if m := s.placeholderLocked(sess); m != nil {
		m.ID = messageID
	}
	sess.placeholderID = messageID
	sess.reassigned = true
}

func (s *Store) persistLocked() {
	if s.persist == nil {
		return
	}
	snap := Snapshot{
		Conversations:        append([]Conversation(nil), s.conversations...),
		Messages:             make(map[string][]Message, len(s.messages)),
		ActiveConversationID: s.activeID,
	}
	for id, msgs := range s.messages {
		snap.Messages[id] = cloneMessages(msgs)
	}
	if err := s.persist.SaveChatSnapshot(snap); err != nil {
		log.Printf("chat: failed to persist snapshot: %v", err)
	}
}

func (s *Store) notifyLocked() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// setFirstTextBlock replaces the accumulated text of the first text block;
// replaying the full current text keeps duplicate delta delivery idempotent
// by position.
func setFirstTextBlock(m *Message, text string) {
	for i := range m.Blocks {
		if m.Blocks[i].Type == "text" {
			m.Blocks[i].Text = text
			return
		}
	}
	m.Blocks = append(m.Blocks, stream.TextBlock(text))
}

// titleHint derives a conversation title from the first user message.
func titleHint(text string) string {
	const maxTitleLen = 60
	runes := []rune(text)
	if len(runes) <= maxTitleLen {
		return text
	}
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "..."
}

// cloneMessages deep-copies a message list including each Blocks slice.
func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		out[i].Blocks = append([]stream.Block(nil), out[i].Blocks...)
	}
	return out
}

// capMessages enforces the per-conversation cap, dropping oldest first.
func capMessages(msgs []Message) []Message {
	if over := len(msgs) - MaxMessagesPerConversation; over > 0 {
		msgs = append([]Message(nil), msgs[over:]...)
	}
	return msgs
}
