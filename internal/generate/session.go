package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"relay/internal/compress"
	"relay/internal/content"
	"relay/internal/history"
	"relay/pkg/logger"
)

// Session ties one client to one conversation history and drives the
// record/compress lifecycle around each exchange.
type Session struct {
	id                string
	client            *Client
	store             *history.Store
	compressor        *compress.Compressor
	compressOpts      compress.Options
	systemInstruction string
	tools             []content.ToolGroup
	compressionCount  int
}

// SessionConfig configures a new session.
type SessionConfig struct {
	SystemInstruction string
	Tools             []content.ToolGroup
	Compression       compress.Options
	// InitialHistory seeds the session's turn log.
	InitialHistory []content.Turn
}

// NewSession creates a session over the given client.
func NewSession(client *Client, cfg SessionConfig) (*Session, error) {
	store, err := history.New(cfg.InitialHistory)
	if err != nil {
		return nil, err
	}
	return &Session{
		id:                uuid.New().String(),
		client:            client,
		store:             store,
		compressor:        compress.New(&summaryGenerator{client: client}),
		compressOpts:      cfg.Compression,
		systemInstruction: cfg.SystemInstruction,
		tools:             cfg.Tools,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Send runs one exchange: compression check, generation against the curated
// history plus the new input, then recording of the result. Compression and
// recording failures are logged but never fail the exchange.
func (s *Session) Send(ctx context.Context, input any) (*Response, error) {
	turns, err := content.Normalize(input)
	if err != nil {
		return nil, err
	}

	s.maybeCompress(ctx)

	resp, err := s.client.Generate(ctx, Request{
		Turns:             append(s.store.History(true), turns...),
		SystemInstruction: s.systemInstruction,
		Tools:             s.tools,
	})
	if err != nil {
		return nil, err
	}

	s.record(turns, []content.Turn{resp.Turn})
	return resp, nil
}

// SendStream runs one streaming exchange. Events are forwarded as they
// arrive; the accumulated model output is recorded when the stream finishes
// cleanly.
func (s *Session) SendStream(ctx context.Context, input any) (<-chan StreamEvent, error) {
	turns, err := content.Normalize(input)
	if err != nil {
		return nil, err
	}

	s.maybeCompress(ctx)

	events, err := s.client.GenerateStream(ctx, Request{
		Turns:             append(s.store.History(true), turns...),
		SystemInstruction: s.systemInstruction,
		Tools:             s.tools,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		var text strings.Builder
		var calls []content.ToolCall
		for ev := range events {
			switch ev.Type {
			case EventTypeContent:
				text.WriteString(ev.Text)
			case EventTypeToolCalls:
				calls = append(calls, ev.ToolCalls...)
			case EventTypeDone:
				s.record(turns, []content.Turn{assembleTurn(text.String(), calls)})
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Compress summarizes the oldest history portion. Unlike the automatic
// pre-send check, errors propagate to the caller.
func (s *Session) Compress(ctx context.Context, opts compress.Options) (*compress.Result, error) {
	res, err := s.compressor.TryCompress(ctx, s.store, opts)
	if err != nil {
		return nil, err
	}
	if res != nil {
		s.compressionCount++
	}
	return res, nil
}

// Stats summarizes the session's current state.
type Stats struct {
	SessionID        string
	Turns            int
	CuratedTurns     int
	EstimatedTokens  int
	ContextLimit     int
	CompressionCount int
}

// Stats reports turn counts, the estimated token load of the curated
// history and how many compressions have run.
func (s *Session) Stats() Stats {
	curated := s.store.History(true)
	tokens, _ := s.client.CountTokens(curated)
	return Stats{
		SessionID:        s.id,
		Turns:            s.store.Len(),
		CuratedTurns:     len(curated),
		EstimatedTokens:  tokens,
		ContextLimit:     s.client.ContextLimit(),
		CompressionCount: s.compressionCount,
	}
}

// History returns the session's turn log, curated when requested.
func (s *Session) History(curated bool) []content.Turn {
	return s.store.History(curated)
}

// SetHistory replaces the session's turn log.
func (s *Session) SetHistory(turns []content.Turn) error {
	return s.store.SetHistory(turns)
}

// Clear empties the session's turn log.
func (s *Session) Clear() {
	s.store.Clear()
}

func (s *Session) maybeCompress(ctx context.Context) {
	res, err := s.compressor.TryCompress(ctx, s.store, s.compressOpts)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", s.id).Msg("automatic compression failed, continuing with full history")
		return
	}
	if res != nil {
		s.compressionCount++
		logger.Info().Str("session_id", s.id).
			Int("original_tokens", res.OriginalTokenCount).
			Int("new_tokens", res.NewTokenCount).
			Msg("history compressed")
	}
}

func (s *Session) record(inputs []content.Turn, outputs []content.Turn) {
	if len(inputs) == 0 {
		return
	}
	userInput := inputs[len(inputs)-1]
	var external []content.Turn
	if len(inputs) > 1 {
		external = inputs
	}
	s.store.Record(userInput, outputs, external)
}

func assembleTurn(text string, calls []content.ToolCall) content.Turn {
	turn := content.Turn{Role: content.RoleModel}
	if text != "" {
		turn.Fragments = append(turn.Fragments, content.TextFragment(text))
	}
	for _, tc := range calls {
		turn.Fragments = append(turn.Fragments, content.ToolCallFragment(tc))
	}
	return turn
}

// summaryGenerator adapts a Client to the compressor's generator surface.
// Summaries run with no tools and the compression instruction as system
// prompt.
type summaryGenerator struct {
	client *Client
}

func (g *summaryGenerator) Generate(ctx context.Context, turns []content.Turn, systemInstruction string) (content.Turn, error) {
	resp, err := g.client.Generate(ctx, Request{
		Turns:             turns,
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		return content.Turn{}, fmt.Errorf("summary generation: %w", err)
	}
	return resp.Turn, nil
}

func (g *summaryGenerator) CountTokens(turns []content.Turn) (int, bool) {
	return g.client.CountTokens(turns)
}

func (g *summaryGenerator) ContextLimit() int {
	return g.client.ContextLimit()
}
