package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(ev Event) {
	s.events = append(s.events, ev)
}

type panickingSink struct{}

func (panickingSink) Emit(Event) {
	panic("sink exploded")
}

func TestEmit_DeliversToSink(t *testing.T) {
	sink := &recordingSink{}
	Emit(sink, Event{Type: EventRequest, RequestID: "req-1", Model: "gpt-4o"})

	assert.Len(t, sink.events, 1)
	assert.Equal(t, EventRequest, sink.events[0].Type)
	assert.Equal(t, "req-1", sink.events[0].RequestID)
}

func TestEmit_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, Event{Type: EventResponse, RequestID: "req-2"})
	})
}

func TestEmit_SwallowsSinkPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(panickingSink{}, Event{Type: EventError, RequestID: "req-3"})
	})
}

func TestLogSink_Emit(t *testing.T) {
	assert.NotPanics(t, func() {
		LogSink{}.Emit(Event{
			Type:             EventResponse,
			RequestID:        "req-4",
			Model:            "gpt-4o",
			DurationMs:       12,
			Status:           200,
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		})
	})
}
