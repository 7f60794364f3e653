package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"strings"
)

// eventPayload is the wire shape shared by all event kinds; fields the
// server did not send stay zero.
type eventPayload struct {
	Text      string          `json:"text,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Blocks    []Block         `json:"blocks,omitempty"`
	Code      string          `json:"code,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Name      string          `json:"name,omitempty"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decoder parses a server-sent event stream into typed events. Frames are
// buffered until complete, so chunked delivery that splits a frame across
// reads is handled transparently by the underlying scanner.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a Decoder reading SSE frames from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)

	// Increase buffer size for large SSE frames (tool results can be big)
	const maxScanTokenSize = 1024 * 1024 // 1MB
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	return &Decoder{scanner: scanner}
}

// Run reads the stream until it terminates and invokes emit for every
// decoded event. A done event is emitted exactly once, as the last event,
// whether the stream ended with complete, error, or an abrupt EOF. The
// returned error reports transport-level read failures only; server-signaled
// errors arrive as EventError.
func (d *Decoder) Run(emit func(Event)) error {
	defer emit(Event{Kind: EventDone})

	var eventName string

	for d.scanner.Scan() {
		line := strings.TrimRight(d.scanner.Text(), "\r")

		// Comments keep the connection warm; a blank line resets the frame.
		if strings.HasPrefix(line, ":") {
			continue
		}
		if line == "" {
			if eventName == string(EventDone) {
				// Terminal frame may carry no data line at all.
				return nil
			}
			eventName = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}
		dataStr := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if dataStr == "[DONE]" || eventName == string(EventDone) {
			return nil
		}

		var payload eventPayload
		if dataStr != "" && dataStr != "{}" {
			if err := json.Unmarshal([]byte(dataStr), &payload); err != nil {
				log.Printf("stream: dropping malformed %q frame: %v", eventName, err)
				continue
			}
		}

		ev, ok := buildEvent(eventName, payload)
		if !ok {
			// Unknown kinds are ignored for forward compatibility.
			log.Printf("stream: ignoring unknown event kind %q", eventName)
			continue
		}
		emit(ev)
	}

	if err := d.scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func buildEvent(name string, p eventPayload) (Event, bool) {
	switch EventKind(name) {
	case EventDelta:
		return Event{Kind: EventDelta, Text: p.Text, MessageID: p.MessageID}, true
	case EventBlocks:
		return Event{Kind: EventBlocks, Blocks: p.Blocks, MessageID: p.MessageID}, true
	case EventStatus:
		return Event{Kind: EventStatus, Code: p.Code, Detail: p.Detail}, true
	case EventToolStarted:
		return Event{Kind: EventToolStarted, ToolName: p.Name, Data: p.Data}, true
	case EventToolProposed:
		return Event{Kind: EventToolProposed, ToolID: p.ID, Data: p.Data}, true
	case EventToolResult:
		return Event{Kind: EventToolResult, Data: p.Data}, true
	case EventComplete:
		return Event{Kind: EventComplete, MessageID: p.MessageID}, true
	case EventError:
		return Event{Kind: EventError, Code: p.Code, Detail: p.Detail}, true
	default:
		return Event{}, false
	}
}
