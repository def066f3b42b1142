package generate

import "relay/internal/stream"

// StreamEvent aliases the decoder's event type so façade callers need not
// import the stream package.
type StreamEvent = stream.Event

// Streaming event types.
const (
	EventTypeContent   = stream.EventTypeContent
	EventTypeToolCalls = stream.EventTypeToolCalls
	EventTypeDone      = stream.EventTypeDone
	EventTypeError     = stream.EventTypeError
)
