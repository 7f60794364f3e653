package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"mealboard/internal/chat"
	"mealboard/internal/stream"
)

// streamHandle cancels the request context backing one chat stream.
type streamHandle struct {
	cancel context.CancelFunc
}

func (h *streamHandle) Abort() {
	h.cancel()
}

// StreamChatMessage posts a user message and decodes the SSE reply stream
// into cb on a background goroutine. The returned handle aborts the
// stream; the decoder then winds down with a final done callback.
func (c *Client) StreamChatMessage(ctx context.Context, conversationID, text string, cb chat.Callbacks, titleHint string) (chat.Handle, error) {
	body, err := json.Marshal(sendMessageRequest{
		ConversationID: conversationID,
		Text:           text,
		TitleHint:      titleHint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(sctx, http.MethodPost, c.baseURL+"/client/chat/", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("chat stream error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	go func() {
		defer cancel()
		defer resp.Body.Close()

		if err := stream.NewDecoder(resp.Body).Run(func(ev stream.Event) {
			dispatch(ev, cb)
		}); err != nil && sctx.Err() == nil {
			log.Printf("api: chat stream read failed: %v", err)
		}
	}()

	return &streamHandle{cancel: cancel}, nil
}

// dispatch fans one decoded event out to the matching callback.
func dispatch(ev stream.Event, cb chat.Callbacks) {
	switch ev.Kind {
	case stream.EventDelta:
		if cb.OnDelta != nil {
			cb.OnDelta(ev.Text, ev.MessageID)
		}
	case stream.EventBlocks:
		if cb.OnBlocks != nil {
			cb.OnBlocks(ev.Blocks, ev.MessageID)
		}
	case stream.EventStatus:
		if cb.OnStatus != nil {
			cb.OnStatus(ev.Code, ev.Detail)
		}
	case stream.EventToolStarted:
		if cb.OnToolStarted != nil {
			cb.OnToolStarted(ev.ToolName, ev.Data)
		}
	case stream.EventToolProposed:
		if cb.OnToolProposed != nil {
			cb.OnToolProposed(ev.ToolID, ev.Data)
		}
	case stream.EventToolResult:
		if cb.OnToolResult != nil {
			cb.OnToolResult(ev.Data)
		}
	case stream.EventComplete:
		if cb.OnComplete != nil {
			cb.OnComplete(ev.MessageID)
		}
	case stream.EventError:
		if cb.OnError != nil {
			cb.OnError(ev.Code, ev.Detail)
		}
	case stream.EventDone:
		if cb.OnDone != nil {
			cb.OnDone()
		}
	}
}
