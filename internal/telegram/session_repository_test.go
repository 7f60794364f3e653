package telegram

import (
	"context"
	"path/filepath"
	"testing"

	"mealboard/internal/database"
)

func testSessions(t *testing.T) *SessionRepository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSessionRepository(db.SQL)
}

func TestSessionBindReplaceAndClear(t *testing.T) {
	sr := testSessions(t)
	ctx := context.Background()

	// No binding yet.
	conv, err := sr.ConversationFor(ctx, 42)
	if err != nil {
		t.Fatalf("ConversationFor failed: %v", err)
	}
	if conv != "" {
		t.Errorf("Expected no binding, got %q", conv)
	}

	if err := sr.Bind(ctx, 42, "c1"); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := sr.Bind(ctx, 42, "c2"); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}

	conv, err = sr.ConversationFor(ctx, 42)
	if err != nil {
		t.Fatalf("ConversationFor failed: %v", err)
	}
	if conv != "c2" {
		t.Errorf("Expected latest binding c2, got %q", conv)
	}

	if err := sr.Clear(ctx, 42); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if conv, _ := sr.ConversationFor(ctx, 42); conv != "" {
		t.Errorf("Expected binding cleared, got %q", conv)
	}
}
