// Package stream decodes chunked chat completion responses into canonical
// response fragments, reassembling tool calls split across deltas.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"relay/internal/content"
	"relay/internal/wire"
	"relay/pkg/logger"
)

// Event types.
const (
	EventTypeContent   = "content"
	EventTypeToolCalls = "tool_calls"
	EventTypeDone      = "done"
	EventTypeError     = "error"
)

// Event is one decoded streaming event. Text deltas are delivered as they
// arrive; completed tool calls are delivered in a single batch before done.
type Event struct {
	Type         string
	Text         string
	ToolCalls    []content.ToolCall
	Usage        *wire.Usage
	FinishReason string
	Err          error
}

// SSE framing.
const (
	sseDataPrefix = "data:"
	sseDoneMarker = "[DONE]"
)

// Decode consumes an SSE response body and emits decoded events on the
// returned channel. The body is closed on every exit path. Cancelling ctx
// stops the decode promptly even when the consumer has abandoned the
// channel.
func Decode(ctx context.Context, body io.ReadCloser) <-chan Event {
	events := make(chan Event, 32)

	go func() {
		defer close(events)
		defer body.Close()

		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		acc := NewAccumulator()
		var usage *wire.Usage
		finishReason := ""

		finish := func() {
			if calls := acc.Completed(); len(calls) > 0 {
				if !emit(Event{Type: EventTypeToolCalls, ToolCalls: calls}) {
					return
				}
			}
			emit(Event{Type: EventTypeDone, Usage: usage, FinishReason: finishReason})
		}

		scanner := bufio.NewScanner(body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()

			// Skip blank lines and SSE comments.
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			if !strings.HasPrefix(line, sseDataPrefix) {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))

			if data == sseDoneMarker {
				finish()
				return
			}

			var chunk wire.StreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// A malformed chunk must not abort the stream.
				logger.Debug().Err(err).Str("data", data).Msg("skipping malformed stream chunk")
				continue
			}

			if chunk.Error != nil {
				emit(Event{
					Type: EventTypeError,
					Err:  fmt.Errorf("stream: [%s] %s", chunk.Error.Type, chunk.Error.Message),
				})
				return
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !emit(Event{Type: EventTypeContent, Text: choice.Delta.Content}) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					acc.Apply(tc)
				}
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
			}
		}

		if err := scanner.Err(); err != nil {
			emit(Event{Type: EventTypeError, Err: err})
			return
		}

		// Connection closed before the sentinel. Flush what accumulated so
		// the caller can still make progress.
		logger.Warn().Int("pending_tool_calls", acc.Len()).
			Msg("stream ended without [DONE] sentinel")
		finish()
	}()

	return events
}
