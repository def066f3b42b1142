// Package content defines the canonical conversation content model shared
// by the translator, the history store and the generation façade.
package content

import (
	"fmt"
	"strings"
)

// Role identifies the author of a Turn. Only two values are canonical;
// anything else is rejected at every history ingestion point.
type Role string

// Canonical roles.
const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// RoleError reports a turn carrying a role outside the canonical set.
type RoleError struct {
	Role string
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("content: invalid role %q (want %q or %q)", e.Role, RoleUser, RoleModel)
}

// ToolCall is a request by the model to invoke a named function.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult carries the outcome of an executed tool call back to the model.
type ToolResult struct {
	ID    string         `json:"id"`
	Value map[string]any `json:"value,omitempty"`
}

// Fragment is one piece of a Turn. Exactly one payload field is meaningful:
// Text, ToolCall or ToolResult. Thought marks hidden reasoning content that
// is never sent back on the wire.
type Fragment struct {
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
}

// TextFragment returns a plain text fragment.
func TextFragment(text string) Fragment {
	return Fragment{Text: text}
}

// ToolCallFragment returns a fragment carrying a tool call.
func ToolCallFragment(tc ToolCall) Fragment {
	return Fragment{ToolCall: &tc}
}

// ToolResultFragment returns a fragment carrying a tool result.
func ToolResultFragment(tr ToolResult) Fragment {
	return Fragment{ToolResult: &tr}
}

// IsZero reports whether the fragment is the empty object.
func (f Fragment) IsZero() bool {
	return f.Text == "" && f.ToolCall == nil && f.ToolResult == nil && !f.Thought
}

// IsValid reports whether the fragment may appear in curated history.
// An empty-object fragment and an empty non-thought text fragment are
// both invalid.
func (f Fragment) IsValid() bool {
	if f.Thought {
		return true
	}
	return f.Text != "" || f.ToolCall != nil || f.ToolResult != nil
}

// Turn is one role-tagged conversation entry.
type Turn struct {
	Role      Role       `json:"role"`
	Fragments []Fragment `json:"fragments"`
}

// NewUserText returns a user turn holding a single text fragment.
func NewUserText(text string) Turn {
	return Turn{Role: RoleUser, Fragments: []Fragment{TextFragment(text)}}
}

// NewModelText returns a model turn holding a single text fragment.
func NewModelText(text string) Turn {
	return Turn{Role: RoleModel, Fragments: []Fragment{TextFragment(text)}}
}

// Validate checks the turn's role. Fragment-level validity is a curation
// concern, not a validation error.
func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleModel {
		return &RoleError{Role: string(t.Role)}
	}
	return nil
}

// IsValid reports whether the turn may survive curation: it must carry at
// least one fragment and every fragment must itself be valid.
func (t Turn) IsValid() bool {
	if len(t.Fragments) == 0 {
		return false
	}
	for _, f := range t.Fragments {
		if !f.IsValid() {
			return false
		}
	}
	return true
}

// Text returns the turn's text fragments joined by newlines, skipping
// thought content.
func (t Turn) Text() string {
	var parts []string
	for _, f := range t.Fragments {
		if f.Thought {
			continue
		}
		if f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// HasToolCalls reports whether any fragment carries a tool call.
func (t Turn) HasToolCalls() bool {
	for _, f := range t.Fragments {
		if f.ToolCall != nil {
			return true
		}
	}
	return false
}

// HasToolResults reports whether any fragment carries a tool result.
func (t Turn) HasToolResults() bool {
	for _, f := range t.Fragments {
		if f.ToolResult != nil {
			return true
		}
	}
	return false
}

// IsThoughtOnly reports whether the turn carries nothing but thought
// fragments. Such turns are dropped when recording model output.
func (t Turn) IsThoughtOnly() bool {
	if len(t.Fragments) == 0 {
		return false
	}
	for _, f := range t.Fragments {
		if !f.Thought {
			return false
		}
	}
	return true
}

// IsPlainText reports whether every fragment is non-empty, non-thought
// text. Plain-text model turns are eligible for consolidation.
func (t Turn) IsPlainText() bool {
	if len(t.Fragments) == 0 {
		return false
	}
	for _, f := range t.Fragments {
		if f.Thought || f.Text == "" || f.ToolCall != nil || f.ToolResult != nil {
			return false
		}
	}
	return true
}

// Normalize converts a loosely-typed input into a canonical turn list.
// Accepted shapes: string (a user text turn), Fragment, []Fragment (one
// user turn), Turn and []Turn. All other shapes are rejected; call sites
// must never branch on input shape themselves.
func Normalize(input any) ([]Turn, error) {
	switch v := input.(type) {
	case string:
		return []Turn{NewUserText(v)}, nil
	case Fragment:
		return []Turn{{Role: RoleUser, Fragments: []Fragment{v}}}, nil
	case []Fragment:
		return []Turn{{Role: RoleUser, Fragments: v}}, nil
	case Turn:
		return []Turn{v}, nil
	case []Turn:
		return v, nil
	default:
		return nil, fmt.Errorf("content: cannot normalize input of type %T", input)
	}
}

// FunctionDecl describes one callable function exposed to the model.
type FunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolGroup is a named set of function declarations. Wire protocols take a
// flat function list, so groups are flattened during translation.
type ToolGroup struct {
	Functions []FunctionDecl `json:"functions"`
}
