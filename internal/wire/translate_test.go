package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/content"
)

func TestToWire_SystemInstruction(t *testing.T) {
	messages := ToWire([]content.Turn{content.NewUserText("hi")}, "You are helpful.")

	require.Len(t, messages, 2)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, "You are helpful.", messages[0].ContentText())
	assert.Equal(t, RoleUser, messages[1].Role)
}

func TestToWire_RoleMapping(t *testing.T) {
	messages := ToWire([]content.Turn{
		content.NewUserText("question"),
		content.NewModelText("answer"),
	}, "")

	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, RoleAssistant, messages[1].Role)
}

func TestToWire_TextFragmentsJoined(t *testing.T) {
	turn := content.Turn{Role: content.RoleModel, Fragments: []content.Fragment{
		content.TextFragment("part one"),
		content.TextFragment("part two"),
	}}
	messages := ToWire([]content.Turn{turn}, "")

	require.Len(t, messages, 1)
	assert.Equal(t, "part one\npart two", messages[0].ContentText())
}

func TestToWire_ThoughtExcluded(t *testing.T) {
	turn := content.Turn{Role: content.RoleModel, Fragments: []content.Fragment{
		{Thought: true, Text: "private reasoning"},
		content.TextFragment("visible"),
	}}
	messages := ToWire([]content.Turn{turn}, "")

	require.Len(t, messages, 1)
	assert.Equal(t, "visible", messages[0].ContentText())
}

func TestToWire_ToolCallOnlyHasNullContent(t *testing.T) {
	turn := content.Turn{Role: content.RoleModel, Fragments: []content.Fragment{
		content.ToolCallFragment(content.ToolCall{
			ID:   "call_abc",
			Name: "get_weather",
			Args: map[string]any{"city": "NYC"},
		}),
	}}
	messages := ToWire([]content.Turn{turn}, "")

	require.Len(t, messages, 1)
	assert.Nil(t, messages[0].Content)
	require.Len(t, messages[0].ToolCalls, 1)
	assert.Equal(t, "call_abc", messages[0].ToolCalls[0].ID)
	assert.Equal(t, "get_weather", messages[0].ToolCalls[0].Function.Name)

	data, err := json.Marshal(messages[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":null`)
}

func TestToWire_TextWithToolCallKeepsContent(t *testing.T) {
	turn := content.Turn{Role: content.RoleModel, Fragments: []content.Fragment{
		content.TextFragment("let me check"),
		content.ToolCallFragment(content.ToolCall{ID: "c1", Name: "lookup"}),
	}}
	messages := ToWire([]content.Turn{turn}, "")

	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].Content)
	assert.Equal(t, "let me check", *messages[0].Content)
	assert.Len(t, messages[0].ToolCalls, 1)
}

func TestToWire_ToolResultBecomesToolMessage(t *testing.T) {
	turn := content.Turn{Role: content.RoleUser, Fragments: []content.Fragment{
		content.ToolResultFragment(content.ToolResult{
			ID:    "call_abc",
			Value: map[string]any{"temp": "72F"},
		}),
	}}
	messages := ToWire([]content.Turn{turn}, "")

	require.Len(t, messages, 1)
	assert.Equal(t, RoleTool, messages[0].Role)
	assert.Equal(t, "call_abc", messages[0].ToolCallID)
	assert.JSONEq(t, `{"temp":"72F"}`, messages[0].ContentText())
}

func TestToWire_EmptyTurnProducesNothing(t *testing.T) {
	turn := content.Turn{Role: content.RoleModel, Fragments: []content.Fragment{}}
	messages := ToWire([]content.Turn{turn}, "")
	assert.Empty(t, messages)
}

func TestFromWire_Text(t *testing.T) {
	choice := Choice{Message: Message{
		Role:    RoleAssistant,
		Content: StrPtr("hello back"),
	}}
	turn := FromWire(choice)

	assert.Equal(t, content.RoleModel, turn.Role)
	assert.Equal(t, "hello back", turn.Text())
}

func TestFromWire_ToolCalls(t *testing.T) {
	choice := Choice{Message: Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "call_1", Function: FunctionCall{Name: "get_weather", Arguments: `{"city":"NYC"}`}},
		},
	}}
	turn := FromWire(choice)

	require.Len(t, turn.Fragments, 1)
	tc := turn.Fragments[0].ToolCall
	require.NotNil(t, tc)
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "get_weather", tc.Name)
	assert.Equal(t, map[string]any{"city": "NYC"}, tc.Args)
}

func TestFromWire_MissingNameAndID(t *testing.T) {
	choice := Choice{Message: Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{Function: FunctionCall{Arguments: `{}`}},
			{Function: FunctionCall{Arguments: `{}`}},
		},
	}}
	turn := FromWire(choice)

	require.Len(t, turn.Fragments, 2)
	assert.Equal(t, UnknownFunctionName, turn.Fragments[0].ToolCall.Name)
	assert.Equal(t, "call_0", turn.Fragments[0].ToolCall.ID)
	assert.Equal(t, "call_1", turn.Fragments[1].ToolCall.ID)
}

func TestFromWire_MalformedArguments(t *testing.T) {
	choice := Choice{Message: Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "c1", Function: FunctionCall{Name: "f", Arguments: `{"broken`}},
		},
	}}
	turn := FromWire(choice)

	require.Len(t, turn.Fragments, 1)
	assert.Equal(t, map[string]any{}, turn.Fragments[0].ToolCall.Args)
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no marker", in: "plain answer", want: "plain answer"},
		{name: "marker with newlines", in: "thinking...</think>\n\nanswer", want: "answer"},
		{name: "marker only", in: "thinking</think>", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripReasoning(tt.in))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	original := content.Turn{Role: content.RoleModel, Fragments: []content.Fragment{
		content.TextFragment("checking the weather"),
		content.ToolCallFragment(content.ToolCall{
			ID:   "call_xyz",
			Name: "get_weather",
			Args: map[string]any{"city": "Berlin", "units": "metric"},
		}),
	}}

	messages := ToWire([]content.Turn{original}, "")
	require.Len(t, messages, 1)

	back := FromWire(Choice{Message: messages[0]})
	assert.Equal(t, original.Role, back.Role)
	assert.Equal(t, original.Text(), back.Text())
	require.Len(t, back.Fragments, 2)
	assert.Equal(t, original.Fragments[1].ToolCall.Args, back.Fragments[1].ToolCall.Args)
}

func TestToWireTools(t *testing.T) {
	groups := []content.ToolGroup{
		{Functions: []content.FunctionDecl{
			{Name: "get_weather", Description: "weather lookup"},
			{Name: "get_time"},
		}},
		{Functions: []content.FunctionDecl{
			{Name: "search", Parameters: map[string]any{"type": "object"}},
		}},
	}
	tools := ToWireTools(groups)

	require.Len(t, tools, 3)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "get_weather", tools[0].Function.Name)
	assert.Equal(t, "search", tools[2].Function.Name)
}

func TestMessageUnmarshal_NullContent(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"role":"assistant","content":null,"tool_calls":[{"id":"c1","function":{"name":"f","arguments":"{}"}}]}`), &msg)
	require.NoError(t, err)
	assert.Nil(t, msg.Content)
	assert.Equal(t, "", msg.ContentText())
	assert.Len(t, msg.ToolCalls, 1)
}

func TestDecodeArgs(t *testing.T) {
	assert.Equal(t, map[string]any{}, DecodeArgs(""))
	assert.Equal(t, map[string]any{}, DecodeArgs("null"))
	assert.Equal(t, map[string]any{}, DecodeArgs("not json"))
	assert.Equal(t, map[string]any{"k": "v"}, DecodeArgs(`{"k":"v"}`))
}
