package stream

import (
	"io"
	"strings"
	"testing"
)

// chunkedReader delivers the stream in tiny chunks to simulate partial
// network delivery splitting frames.
type chunkedReader struct {
	data []byte
	pos  int
	size int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func collect(t *testing.T, raw string, chunkSize int) []Event {
	t.Helper()

	var reader io.Reader = strings.NewReader(raw)
	if chunkSize > 0 {
		reader = &chunkedReader{data: []byte(raw), size: chunkSize}
	}

	var events []Event
	if err := NewDecoder(reader).Run(func(ev Event) {
		events = append(events, ev)
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return events
}

func TestDecoderTypedEvents(t *testing.T) {
	raw := "event: delta\n" +
		"data: {\"text\": \"Hel\", \"message_id\": \"m1\"}\n\n" +
		"event: status\n" +
		"data: {\"code\": \"searching_recipes\"}\n\n" +
		"event: tool_started\n" +
		"data: {\"name\": \"search_recipes\", \"data\": {\"query\": \"pasta\"}}\n\n" +
		"event: delta\n" +
		"data: {\"text\": \"lo\"}\n\n" +
		"event: complete\n" +
		"data: {\"message_id\": \"m1\"}\n\n" +
		"event: done\n" +
		"data: [DONE]\n\n"

	events := collect(t, raw, 0)

	kinds := []EventKind{EventDelta, EventStatus, EventToolStarted, EventDelta, EventComplete, EventDone}
	if len(events) != len(kinds) {
		t.Fatalf("Expected %d events, got %d: %+v", len(kinds), len(events), events)
	}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Errorf("Event %d: expected kind %s, got %s", i, k, events[i].Kind)
		}
	}
	if events[0].Text != "Hel" || events[0].MessageID != "m1" {
		t.Errorf("Delta payload mismatch: %+v", events[0])
	}
	if events[2].ToolName != "search_recipes" {
		t.Errorf("Expected tool name 'search_recipes', got '%s'", events[2].ToolName)
	}
}

func TestDecoderChunkedDelivery(t *testing.T) {
	raw := "event: delta\n" +
		"data: {\"text\": \"split across many reads\"}\n\n" +
		"event: done\n\n"

	events := collect(t, raw, 3)

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Text != "split across many reads" {
		t.Errorf("Delta text corrupted by chunking: %q", events[0].Text)
	}
	if events[1].Kind != EventDone {
		t.Errorf("Expected terminal done, got %s", events[1].Kind)
	}
}

func TestDecoderDoneFiresExactlyOnce(t *testing.T) {
	cases := map[string]string{
		"AfterComplete":  "event: complete\ndata: {}\n\nevent: done\ndata: [DONE]\n\n",
		"AfterError":     "event: error\ndata: {\"code\": \"overloaded\", \"detail\": \"busy\"}\n\nevent: done\n\n",
		"AbruptEOF":      "event: delta\ndata: {\"text\": \"hi\"}\n",
		"NothingAtAll":   "",
		"TrailingFrames": "event: done\ndata: [DONE]\n\nevent: delta\ndata: {\"text\": \"late\"}\n\n",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			events := collect(t, raw, 0)

			doneCount := 0
			for _, ev := range events {
				if ev.Kind == EventDone {
					doneCount++
				}
			}
			if doneCount != 1 {
				t.Fatalf("Expected exactly one done event, got %d", doneCount)
			}
			if events[len(events)-1].Kind != EventDone {
				t.Errorf("Expected done to be the terminal event, got %s", events[len(events)-1].Kind)
			}
			for _, ev := range events {
				if ev.Text == "late" {
					t.Error("Frames after done must not be emitted")
				}
			}
		})
	}
}

func TestDecoderToleratesNoise(t *testing.T) {
	raw := ": keep-alive comment\n\n" +
		"event: shiny_new_thing\n" +
		"data: {\"whatever\": true}\n\n" +
		"event: delta\n" +
		"data: not-json\n\n" +
		"event: delta\n" +
		"data: {\"text\": \"ok\"}\n\n"

	events := collect(t, raw, 0)

	if len(events) != 2 {
		t.Fatalf("Expected unknown kinds and bad frames to be dropped, got %+v", events)
	}
	if events[0].Text != "ok" {
		t.Errorf("Expected surviving delta 'ok', got %q", events[0].Text)
	}
}
