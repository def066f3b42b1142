// Package history owns the conversation turn log: validation on ingestion,
// curation into a strictly alternating projection, and consolidation of
// adjacent model text.
package history

import (
	"relay/internal/content"
	"relay/pkg/logger"
)

// Store holds the ordered turn log for one conversation session. It has no
// internal locking: the design assumes at most one in-flight request per
// session. Callers needing concurrent sessions must use one Store each.
type Store struct {
	turns []content.Turn
}

// New creates a store, optionally seeded with an initial snapshot. Every
// seeded turn must carry a canonical role.
func New(initial []content.Turn) (*Store, error) {
	s := &Store{}
	if err := s.SetHistory(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// History returns the turn log. With curated true, the log is reduced to
// its valid, strictly alternating projection.
func (s *Store) History(curated bool) []content.Turn {
	if curated {
		return Curate(s.turns)
	}
	out := make([]content.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// SetHistory validates every turn's role and replaces the log atomically:
// a single bad role leaves the existing log untouched.
func (s *Store) SetHistory(turns []content.Turn) error {
	for _, t := range turns {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	s.turns = make([]content.Turn, len(turns))
	copy(s.turns, turns)
	return nil
}

// Add appends one turn to the log.
func (s *Store) Add(turn content.Turn) {
	s.turns = append(s.turns, turn)
}

// Clear empties the log.
func (s *Store) Clear() {
	s.turns = nil
}

// Len returns the raw turn count.
func (s *Store) Len() int {
	return len(s.turns)
}

// Record appends one completed exchange: the user input (or, when supplied,
// the curated external history that already contains it, as produced by
// multi-step tool execution) followed by the model outputs, consolidated.
func (s *Store) Record(userInput content.Turn, modelOutputs []content.Turn, external []content.Turn) {
	// Thought-only outputs never enter history.
	outputs := make([]content.Turn, 0, len(modelOutputs))
	for _, t := range modelOutputs {
		if t.IsThoughtOnly() {
			continue
		}
		outputs = append(outputs, t)
	}
	hadThoughtOnly := len(modelOutputs) > 0 && len(outputs) == 0

	var outgoing []content.Turn
	switch {
	case len(outputs) > 0 && allHaveRole(outputs):
		outgoing = outputs
	case hadThoughtOnly:
		// The model produced only hidden reasoning; do not insert an
		// empty model turn for it.
	default:
		// The model produced nothing at all. Preserve alternation with an
		// empty model turn, unless the user input was itself a tool
		// result awaiting a follow-up call.
		if !userInput.HasToolResults() {
			outgoing = []content.Turn{{Role: content.RoleModel, Fragments: []content.Fragment{}}}
		}
	}

	if len(external) > 0 {
		s.turns = append(s.turns, Curate(external)...)
	} else {
		s.turns = append(s.turns, userInput)
	}

	consolidated := consolidate(outgoing)

	// Continue a still-open model turn rather than opening a new one. An
	// external history is already a complete record of its exchange, so
	// outputs following one always open their own turn.
	if len(external) == 0 && len(consolidated) > 0 && len(s.turns) > 0 {
		last := &s.turns[len(s.turns)-1]
		if last.Role == content.RoleModel && last.IsPlainText() && consolidated[0].IsPlainText() {
			mergeTextTurn(last, consolidated[0])
			consolidated = consolidated[1:]
		}
	}

	s.turns = append(s.turns, consolidated...)
	logger.Debug().Int("history_len", len(s.turns)).Msg("recorded conversation turn")
}

func allHaveRole(turns []content.Turn) bool {
	for _, t := range turns {
		if t.Role == "" {
			return false
		}
	}
	return true
}

// consolidate merges runs of adjacent plain-text model turns so that one
// logical model utterance occupies one history entry.
func consolidate(turns []content.Turn) []content.Turn {
	var out []content.Turn
	for _, t := range turns {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.Role == content.RoleModel && last.IsPlainText() &&
				t.Role == content.RoleModel && t.IsPlainText() {
				mergeTextTurn(last, t)
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// mergeTextTurn concatenates src's leading text into dst's first fragment
// and appends src's remaining fragments.
func mergeTextTurn(dst *content.Turn, src content.Turn) {
	if len(src.Fragments) == 0 {
		return
	}
	dst.Fragments[0].Text += src.Fragments[0].Text
	dst.Fragments = append(dst.Fragments, src.Fragments[1:]...)
}

// Curate reduces a raw turn log to its valid projection: user turns are
// kept as-is; a maximal run of consecutive model turns survives only if
// every turn in it is valid, otherwise the run is excluded together with
// the user turn that prompted it, preserving alternation.
func Curate(turns []content.Turn) []content.Turn {
	var out []content.Turn
	i := 0
	for i < len(turns) {
		if turns[i].Role == content.RoleUser {
			out = append(out, turns[i])
			i++
			continue
		}

		runStart := i
		runValid := true
		for i < len(turns) && turns[i].Role != content.RoleUser {
			if !turns[i].IsValid() {
				runValid = false
			}
			i++
		}
		if runValid {
			out = append(out, turns[runStart:i]...)
		} else if len(out) > 0 && out[len(out)-1].Role == content.RoleUser {
			out = out[:len(out)-1]
		}
	}
	return out
}
