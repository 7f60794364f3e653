package telegram

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionRepository binds a Telegram chat to its active conversation so
// the thread survives bot restarts.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Bind stores the active conversation for a chat, replacing any previous
// binding.
func (sr *SessionRepository) Bind(ctx context.Context, chatID int64, conversationID string) error {
	query := `INSERT INTO telegram_sessions (chat_id, conversation_id, updated_at)
	          VALUES (?, ?, ?)
	          ON CONFLICT(chat_id) DO UPDATE SET conversation_id = excluded.conversation_id, updated_at = excluded.updated_at`
	if _, err := sr.db.ExecContext(ctx, query, chatID, conversationID, time.Now()); err != nil {
		return fmt.Errorf("failed to bind session for chat %d: %w", chatID, err)
	}
	return nil
}

// ConversationFor returns the bound conversation id for a chat, or empty
// when the chat has no binding yet.
func (sr *SessionRepository) ConversationFor(ctx context.Context, chatID int64) (string, error) {
	var conversationID string
	err := sr.db.QueryRowContext(ctx,
		`SELECT conversation_id FROM telegram_sessions WHERE chat_id = ?`, chatID).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session for chat %d: %w", chatID, err)
	}
	return conversationID, nil
}

// Clear removes the binding for a chat.
func (sr *SessionRepository) Clear(ctx context.Context, chatID int64) error {
	if _, err := sr.db.ExecContext(ctx, `DELETE FROM telegram_sessions WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("failed to clear session for chat %d: %w", chatID, err)
	}
	return nil
}
