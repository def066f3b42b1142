// Package compress replaces the oldest portion of a conversation with a
// model-generated summary turn pair, reclaiming context budget.
package compress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"relay/internal/content"
	"relay/internal/history"
	"relay/pkg/logger"
)

// Compression errors.
var (
	// ErrInvalidFraction indicates a fraction argument outside (0, 1).
	ErrInvalidFraction = errors.New("compress: fraction must be strictly between 0 and 1")

	// ErrSummaryFailed indicates that the summarization call failed.
	ErrSummaryFailed = errors.New("compress: summary generation failed")
)

// Generator is the narrow generation surface the compressor needs.
type Generator interface {
	// Generate performs one secondary generation call.
	Generate(ctx context.Context, turns []content.Turn, systemInstruction string) (content.Turn, error)
	// CountTokens estimates the token count of the turns for the
	// generator's model. The second return is false when the count
	// cannot be determined.
	CountTokens(turns []content.Turn) (int, bool)
	// ContextLimit returns the model's context window size.
	ContextLimit() int
}

// Options controls one compression attempt.
type Options struct {
	// Force runs compression regardless of the threshold.
	Force bool
	// Threshold is the fraction of the context limit at which compression
	// triggers. Default 0.7.
	Threshold float64
	// PreserveFraction is the trailing fraction of history (by serialized
	// size) kept uncompressed. Default 0.3.
	PreserveFraction float64
}

func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = 0.7
	}
	if o.PreserveFraction == 0 {
		o.PreserveFraction = 0.3
	}
	return o
}

// Result reports token counts around a compression that actually ran.
type Result struct {
	OriginalTokenCount int
	NewTokenCount      int
}

// Compressor decides when and how to summarize conversation history.
type Compressor struct {
	gen Generator
}

// New creates a Compressor backed by the given generator.
func New(gen Generator) *Compressor {
	return &Compressor{gen: gen}
}

// TryCompress compresses the oldest portion of the store's curated history
// when it exceeds the threshold (or unconditionally when forced). It
// returns nil when nothing was done. A summarization failure propagates to
// the caller; history is only replaced after a successful summary.
func (c *Compressor) TryCompress(ctx context.Context, store *history.Store, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.PreserveFraction <= 0 || opts.PreserveFraction >= 1 {
		return nil, ErrInvalidFraction
	}

	curated := store.History(true)
	if len(curated) == 0 {
		return nil, nil
	}

	tokens, ok := c.gen.CountTokens(curated)
	if !ok {
		return nil, nil
	}
	limit := c.gen.ContextLimit()
	if !opts.Force && float64(tokens) < opts.Threshold*float64(limit) {
		logger.Debug().Int("tokens", tokens).Int("limit", limit).
			Msg("compression not needed")
		return nil, nil
	}

	cut, err := FindIndexAfterFraction(curated, 1-opts.PreserveFraction)
	if err != nil {
		return nil, err
	}
	// The boundary must fall exactly at the start of a user turn: never
	// split a model turn from the user turn that prompted it, and never
	// orphan a tool result from its call.
	for cut < len(curated) && (curated[cut].Role == content.RoleModel || curated[cut].HasToolResults()) {
		cut++
	}
	if cut == 0 {
		return nil, nil
	}

	summaryTurn, err := c.gen.Generate(ctx, curated[:cut], compressionPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSummaryFailed, err)
	}
	summary := strings.TrimSpace(summaryTurn.Text())

	newHistory := make([]content.Turn, 0, len(curated)-cut+2)
	newHistory = append(newHistory,
		content.NewUserText(summary),
		content.NewModelText(compressionAck),
	)
	newHistory = append(newHistory, curated[cut:]...)
	if err := store.SetHistory(newHistory); err != nil {
		return nil, err
	}

	newTokens, ok := c.gen.CountTokens(store.History(true))
	if !ok {
		return nil, nil
	}

	logger.Info().Int("original_tokens", tokens).Int("new_tokens", newTokens).
		Int("compressed_turns", cut).Msg("compressed conversation history")
	return &Result{OriginalTokenCount: tokens, NewTokenCount: newTokens}, nil
}

// FindIndexAfterFraction returns the first index at which the cumulative
// serialized byte length of the turns reaches fraction of the total. The
// result is in [0, len(turns)]. The fraction must be strictly in (0, 1).
func FindIndexAfterFraction(turns []content.Turn, fraction float64) (int, error) {
	if fraction <= 0 || fraction >= 1 {
		return 0, ErrInvalidFraction
	}

	lengths := make([]int, len(turns))
	total := 0
	for i, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			// Marshal of plain data cannot realistically fail; treat the
			// turn as weightless rather than aborting.
			continue
		}
		lengths[i] = len(data)
		total += lengths[i]
	}

	target := float64(total) * fraction
	sum := 0
	for i, l := range lengths {
		sum += l
		if float64(sum) >= target {
			return i, nil
		}
	}
	return len(turns), nil
}
