package stream

import (
	"fmt"
	"sort"
	"strings"

	"relay/internal/content"
	"relay/internal/wire"
)

// Accumulator reassembles tool calls delivered as chunked deltas. Deltas
// are merged by their per-response index, not by id: the id may arrive only
// in the first delta for that index.
type Accumulator struct {
	calls map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*partialCall)}
}

// Apply merges one tool-call delta into the accumulator.
func (a *Accumulator) Apply(delta wire.ToolCall) {
	call, ok := a.calls[delta.Index]
	if !ok {
		call = &partialCall{}
		a.calls[delta.Index] = call
	}
	if delta.ID != "" {
		call.id = delta.ID
	}
	if call.name == "" && delta.Function.Name != "" {
		call.name = delta.Function.Name
	}
	call.args.WriteString(delta.Function.Arguments)
}

// Len returns the number of calls currently accumulating.
func (a *Accumulator) Len() int {
	return len(a.calls)
}

// Completed returns every accumulated call that acquired a name, ordered by
// index. Arguments may legitimately still be empty; they decode to an empty
// argument map. A call that never received an id gets one synthesized from
// its index.
func (a *Accumulator) Completed() []content.ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for idx, call := range a.calls {
		if call.name == "" {
			continue
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]content.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		call := a.calls[idx]
		id := call.id
		if id == "" {
			id = fmt.Sprintf("call_%d", idx)
		}
		out = append(out, content.ToolCall{
			ID:   id,
			Name: call.name,
			Args: wire.DecodeArgs(call.args.String()),
		})
	}
	return out
}
