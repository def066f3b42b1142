package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"relay/internal/content"
	"relay/pkg/logger"
)

// UnknownFunctionName is substituted for tool calls arriving without a name.
const UnknownFunctionName = "unknown_function"

// reasoningCloseMarker terminates a private reasoning segment that some
// backends prepend to the visible response text.
const reasoningCloseMarker = "</think>"

// ToWire translates canonical turns into wire messages. A non-empty system
// instruction is prepended as a system message. Canonical user turns map to
// the user role; every other canonical role maps to assistant. Tool-result
// fragments become separate tool-role messages so multi-step tool calling
// stays well-formed on the wire.
func ToWire(turns []content.Turn, systemInstruction string) []Message {
	var messages []Message
	if systemInstruction != "" {
		messages = append(messages, Message{
			Role:    RoleSystem,
			Content: StrPtr(systemInstruction),
		})
	}

	for _, turn := range turns {
		role := RoleAssistant
		if turn.Role == content.RoleUser {
			role = RoleUser
		}

		var texts []string
		var toolCalls []ToolCall
		var toolResults []content.ToolResult
		for _, f := range turn.Fragments {
			switch {
			case f.Thought:
				// Hidden reasoning never goes on the wire.
			case f.ToolCall != nil:
				toolCalls = append(toolCalls, ToolCall{
					ID:   f.ToolCall.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      f.ToolCall.Name,
						Arguments: encodeArgs(f.ToolCall.Args),
					},
				})
			case f.ToolResult != nil:
				toolResults = append(toolResults, *f.ToolResult)
			case f.Text != "":
				texts = append(texts, f.Text)
			}
		}

		text := strings.Join(texts, "\n")
		if text != "" || len(toolCalls) > 0 {
			msg := Message{Role: role, ToolCalls: toolCalls}
			// Content must be null exactly when the message carries only
			// tool calls.
			if text != "" || len(toolCalls) == 0 {
				msg.Content = StrPtr(text)
			}
			messages = append(messages, msg)
		}

		for _, tr := range toolResults {
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    StrPtr(encodeArgs(tr.Value)),
				ToolCallID: tr.ID,
			})
		}
	}

	return messages
}

// FromWire translates one complete choice back into a canonical model turn.
func FromWire(choice Choice) content.Turn {
	turn := content.Turn{Role: content.RoleModel}

	if text := StripReasoning(choice.Message.ContentText()); text != "" {
		turn.Fragments = append(turn.Fragments, content.TextFragment(text))
	}

	for i, tc := range choice.Message.ToolCalls {
		name := tc.Function.Name
		if name == "" {
			name = UnknownFunctionName
		}
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		turn.Fragments = append(turn.Fragments, content.ToolCallFragment(content.ToolCall{
			ID:   id,
			Name: name,
			Args: DecodeArgs(tc.Function.Arguments),
		}))
	}

	return turn
}

// ToWireTools flattens canonical tool groups into a wire tool list.
func ToWireTools(groups []content.ToolGroup) []Tool {
	var tools []Tool
	for _, g := range groups {
		for _, fn := range g.Functions {
			tools = append(tools, Tool{
				Type: "function",
				Function: Function{
					Name:        fn.Name,
					Description: fn.Description,
					Parameters:  fn.Parameters,
				},
			})
		}
	}
	return tools
}

// StripReasoning removes a leading private reasoning segment, identified by
// its closing marker. Text without the marker passes through unchanged.
func StripReasoning(text string) string {
	idx := strings.Index(text, reasoningCloseMarker)
	if idx < 0 {
		return text
	}
	return strings.TrimLeft(text[idx+len(reasoningCloseMarker):], "\n")
}

// DecodeArgs parses a tool call's raw argument string. A parse failure
// yields an empty argument map, never an error: a garbled tool call is
// still a tool call.
func DecodeArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.Warn().Err(err).Str("arguments", raw).Msg("tool call arguments are not valid JSON")
		return map[string]any{}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args
}

func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode tool call arguments")
		return "{}"
	}
	return string(data)
}
