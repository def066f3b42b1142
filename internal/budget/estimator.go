// Package budget estimates token costs and selects messages that fit a
// model's context window. The estimator is a calibrated heuristic, not a
// model-specific tokenizer; its job is stable relative ordering, not exact
// counts.
package budget

import (
	"encoding/json"
	"math"
	"strings"
	"unicode"

	"relay/internal/wire"
)

// Per-message overhead constants.
const (
	// messageOverhead covers role framing and separators.
	messageOverhead = 4
	// toolCallsOverhead is added once for a message carrying tool calls.
	toolCallsOverhead = 8
	// perToolCallOverhead is added for each individual call.
	perToolCallOverhead = 4
	// perToolDeclOverhead is added for each declared tool.
	perToolDeclOverhead = 8
)

// EstimateText estimates the token count of a text string:
// ceil(chars/4) + ceil(words*0.1) + ceil(specialChars*0.3).
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	chars := len(text)
	words := len(strings.Fields(text))
	special := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	return int(math.Ceil(float64(chars)/4)) +
		int(math.Ceil(float64(words)*0.1)) +
		int(math.Ceil(float64(special)*0.3))
}

// EstimateMessage estimates the token cost of one wire message, including
// role framing and any tool calls it carries.
func EstimateMessage(msg wire.Message) int {
	total := messageOverhead + EstimateText(msg.ContentText())
	if len(msg.ToolCalls) > 0 {
		total += toolCallsOverhead
		for _, tc := range msg.ToolCalls {
			total += perToolCallOverhead
			total += EstimateText(tc.Function.Name)
			total += EstimateText(tc.Function.Arguments)
		}
	}
	return total
}

// EstimateMessages estimates the total token cost of a message list.
func EstimateMessages(messages []wire.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessage(msg)
	}
	return total
}

// EstimateTools estimates the token cost of declared tools: per-tool
// overhead plus name, description and the JSON-encoded parameter schema.
func EstimateTools(tools []wire.Tool) int {
	total := 0
	for _, tool := range tools {
		total += perToolDeclOverhead
		total += EstimateText(tool.Function.Name)
		total += EstimateText(tool.Function.Description)
		if tool.Function.Parameters != nil {
			if data, err := json.Marshal(tool.Function.Parameters); err == nil {
				total += EstimateText(string(data))
			}
		}
	}
	return total
}
