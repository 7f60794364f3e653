package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mealboard/internal/chat"
	"mealboard/internal/stream"
)

// eventLog collects callback invocations in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
}

func newEventLog() *eventLog {
	return &eventLog{done: make(chan struct{})}
}

func (l *eventLog) add(s string) {
	l.mu.Lock()
	l.events = append(l.events, s)
	l.mu.Unlock()
}

func (l *eventLog) callbacks() chat.Callbacks {
	return chat.Callbacks{
		OnDelta:    func(text, _ string) { l.add("delta:" + text) },
		OnStatus:   func(code, _ string) { l.add("status:" + code) },
		OnComplete: func(id string) { l.add("complete:" + id) },
		OnError:    func(code, _ string) { l.add("error:" + code) },
		OnDone: func() {
			l.add("done")
			close(l.done)
		},
	}
}

func (l *eventLog) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for done callback")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func sseFrame(w http.ResponseWriter, flusher http.Flusher, name string, payload interface{}) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}

func TestStreamChatMessageDispatchesEvents(t *testing.T) {
	var body sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Expected SSE accept header, got %q", r.Header.Get("Accept"))
		}
		json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		sseFrame(w, flusher, "status", map[string]string{"code": "thinking"})
		sseFrame(w, flusher, "delta", map[string]string{"text": "Soup ", "message_id": "srv-1"})
		sseFrame(w, flusher, "delta", map[string]string{"text": "tonight."})
		sseFrame(w, flusher, "complete", map[string]string{"message_id": "srv-1"})
		fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	log := newEventLog()
	handle, err := testClient(t, server.URL).StreamChatMessage(
		context.Background(), "c1", "what's for dinner?", log.callbacks(), "what's for dinner?")
	if err != nil {
		t.Fatalf("StreamChatMessage failed: %v", err)
	}
	defer handle.Abort()

	got := log.wait(t)
	want := []string{"status:thinking", "delta:Soup ", "delta:tonight.", "complete:srv-1", "done"}
	if len(got) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected events %v, got %v", want, got)
		}
	}

	if body.ConversationID != "c1" || body.Text != "what's for dinner?" || body.TitleHint == "" {
		t.Errorf("Unexpected request body: %+v", body)
	}
}

func TestStreamChatMessageNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).StreamChatMessage(
		context.Background(), "c1", "hi", chat.Callbacks{}, "")
	if err == nil {
		t.Fatal("Expected error for non-200 stream response")
	}
}

func TestStreamAbortEndsWithDone(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		sseFrame(w, flusher, "delta", map[string]string{"text": "partial"})
		<-release // hold the stream open until the client walks away
	}))
	defer server.Close()
	defer close(release)

	log := newEventLog()
	handle, err := testClient(t, server.URL).StreamChatMessage(
		context.Background(), "c1", "hi", log.callbacks(), "")
	if err != nil {
		t.Fatalf("StreamChatMessage failed: %v", err)
	}

	// Let the first delta arrive before cutting the stream.
	deadline := time.Now().Add(2 * time.Second)
	for {
		log.mu.Lock()
		n := len(log.events)
		log.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for first delta")
		}
		time.Sleep(5 * time.Millisecond)
	}
	handle.Abort()

	got := log.wait(t)
	if got[len(got)-1] != "done" {
		t.Fatalf("Expected trailing done after abort, got %v", got)
	}
}

func TestDispatchIgnoresNilCallbacks(t *testing.T) {
	// No callbacks registered: every kind must be safe to dispatch.
	for _, kind := range []stream.EventKind{
		stream.EventDelta, stream.EventBlocks, stream.EventStatus,
		stream.EventToolStarted, stream.EventToolProposed, stream.EventToolResult,
		stream.EventComplete, stream.EventError, stream.EventDone,
	} {
		dispatch(stream.Event{Kind: kind}, chat.Callbacks{})
	}
}
