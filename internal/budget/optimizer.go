package budget

import (
	"errors"
	"sort"
	"strings"

	"relay/internal/wire"
	"relay/pkg/logger"
)

// ErrBudgetExhausted indicates that tool declarations and reserved output
// tokens alone consume the entire context window.
var ErrBudgetExhausted = errors.New("budget: no tokens available for messages")

// TruncationMarker is appended to messages cut at a word boundary.
const TruncationMarker = " ... [truncated]"

// OptimizerOptions holds the heuristic knobs of the optimizer. The penalty
// and buffer values are tunable because they have no principled derivation.
type OptimizerOptions struct {
	// RequestedMaxTokens caps the prompt budget below the model limit.
	// Zero means the model limit applies.
	RequestedMaxTokens int
	// SizePenaltyFactor scales the score penalty applied per estimated
	// token of a message, discouraging retention of very large messages.
	SizePenaltyFactor float64
	// TruncationBuffer shrinks the headroom target when truncating, to
	// absorb estimator error.
	TruncationBuffer float64
	// RecencyWindow is the number of trailing messages that receive a
	// linearly increasing recency bonus.
	RecencyWindow int
}

func (o OptimizerOptions) withDefaults() OptimizerOptions {
	if o.SizePenaltyFactor == 0 {
		o.SizePenaltyFactor = 0.01
	}
	if o.TruncationBuffer == 0 {
		o.TruncationBuffer = 0.9
	}
	if o.RecencyWindow == 0 {
		o.RecencyWindow = 5
	}
	return o
}

type rankedMessage struct {
	index    int
	msg      wire.Message
	estimate int
	score    float64
}

// Optimize selects a subset of messages fitting the model's token budget.
// System messages are kept first while they fit; the rest are ranked by
// priority and included greedily, with word-boundary truncation for the
// message that overflows. The selection is returned in original
// chronological order.
func Optimize(messages []wire.Message, maxOutputTokens int, tools []wire.Tool, b ModelBudget, opts OptimizerOptions) ([]wire.Message, error) {
	opts = opts.withDefaults()

	toolTokens := EstimateTools(tools)
	limit := b.MaxContextTokens
	if opts.RequestedMaxTokens > 0 && opts.RequestedMaxTokens < limit {
		limit = opts.RequestedMaxTokens
	}
	available := limit - maxOutputTokens - b.ReserveTokens - toolTokens
	if available <= 0 {
		return nil, ErrBudgetExhausted
	}
	if len(messages) == 0 {
		return []wire.Message{}, nil
	}

	selected := make(map[int]wire.Message, len(messages))
	used := 0

	// System messages come first, kept while they still fit.
	for i, msg := range messages {
		if msg.Role != wire.RoleSystem {
			continue
		}
		est := EstimateMessage(msg)
		if used+est <= available {
			selected[i] = msg
			used += est
		}
	}

	ranked := make([]rankedMessage, 0, len(messages))
	for i, msg := range messages {
		if msg.Role == wire.RoleSystem {
			continue
		}
		est := EstimateMessage(msg)
		ranked = append(ranked, rankedMessage{
			index:    i,
			msg:      msg,
			estimate: est,
			score:    priorityScore(i, len(messages), msg, est, opts),
		})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].index > ranked[b].index
	})

	for _, r := range ranked {
		if used+r.estimate <= available {
			selected[r.index] = r.msg
			used += r.estimate
			continue
		}
		headroom := available - used
		if headroom <= 0 {
			continue
		}
		truncated, ok := truncateToFit(r.msg, headroom, opts.TruncationBuffer)
		if !ok {
			logger.Debug().Int("index", r.index).Int("estimate", r.estimate).
				Msg("budget: dropping message that cannot be truncated to fit")
			continue
		}
		selected[r.index] = truncated
		used += EstimateMessage(truncated)
	}

	// Conversation causality must be preserved on the wire even though
	// selection was priority-based.
	out := make([]wire.Message, 0, len(selected))
	for i := range messages {
		if msg, ok := selected[i]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// priorityScore ranks messages: system above everything, then the trailing
// recency window (linearly increasing), then tool-call carriers, then user,
// then assistant. A message's own estimated size subtracts a penalty.
func priorityScore(index, total int, msg wire.Message, estimate int, opts OptimizerOptions) float64 {
	var score float64
	switch {
	case len(msg.ToolCalls) > 0 || msg.Role == wire.RoleTool:
		score = 300
	case msg.Role == wire.RoleUser:
		score = 200
	default:
		score = 100
	}
	if windowStart := total - opts.RecencyWindow; index >= windowStart {
		score += 400 + 100*float64(index-windowStart+1)
	}
	return score - opts.SizePenaltyFactor*float64(estimate)
}

// truncateToFit cuts message text at a word boundary so the message fits
// the given headroom, appending the truncation marker. Messages carrying
// tool calls are structural and never truncated. Returns false when not
// even one word fits.
func truncateToFit(msg wire.Message, headroom int, buffer float64) (wire.Message, bool) {
	if len(msg.ToolCalls) > 0 {
		return msg, false
	}
	text := msg.ContentText()
	if text == "" {
		return msg, false
	}

	target := int(float64(headroom) * buffer)
	words := strings.Fields(text)
	kept := 0
	for kept < len(words) {
		candidate := strings.Join(words[:kept+1], " ") + TruncationMarker
		probe := msg
		probe.Content = wire.StrPtr(candidate)
		if EstimateMessage(probe) > target {
			break
		}
		kept++
	}
	if kept == 0 {
		return msg, false
	}
	out := msg
	out.Content = wire.StrPtr(strings.Join(words[:kept], " ") + TruncationMarker)
	return out, true
}
