// Package telemetry emits structured request/response/error events.
// Emission is fire-and-forget: a sink failure must never reach the
// generation path.
package telemetry

import (
	"relay/pkg/logger"
)

// Event types.
const (
	EventRequest  = "request"
	EventResponse = "response"
	EventError    = "error"
)

// Event is one structured telemetry record.
type Event struct {
	Type             string `json:"type"`
	RequestID        string `json:"request_id"`
	Model            string `json:"model,omitempty"`
	DurationMs       int64  `json:"duration_ms,omitempty"`
	Status           int    `json:"status,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Sink accepts telemetry events.
type Sink interface {
	Emit(ev Event)
}

// Emit delivers an event to the sink, swallowing panics and nil sinks.
func Emit(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Msg("telemetry sink panicked")
		}
	}()
	sink.Emit(ev)
}

// LogSink writes events through the structured logger.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(ev Event) {
	e := logger.Info().
		Str("event", ev.Type).
		Str("request_id", ev.RequestID)
	if ev.Model != "" {
		e = e.Str("model", ev.Model)
	}
	if ev.DurationMs > 0 {
		e = e.Int64("duration_ms", ev.DurationMs)
	}
	if ev.Status != 0 {
		e = e.Int("status", ev.Status)
	}
	if ev.TotalTokens > 0 {
		e = e.Int("prompt_tokens", ev.PromptTokens).
			Int("completion_tokens", ev.CompletionTokens).
			Int("total_tokens", ev.TotalTokens)
	}
	if ev.Error != "" {
		e = e.Str("error", ev.Error)
	}
	e.Msg("telemetry")
}
