// Package history keeps whole-model snapshots for undo and redo.
package history

import (
	"github.com/chazu/kerf/pkg/model"
)

// DefaultLimit bounds a Stack built with a non-positive limit.
const DefaultLimit = 100

// Snapshot is one committed state. Its Model is private to the stack;
// callers receive copies.
type Snapshot struct {
	Comment string
	Model   *model.Model
	Current model.ID // group being edited when the snapshot was taken
}

// Stack is a linear undo history with a cursor. Entries past the cursor
// are the redo states.
type Stack struct {
	entries []Snapshot
	cursor  int // index of the live state, -1 when empty
	limit   int
}

// New returns an empty stack holding at most limit snapshots.
func New(limit int) *Stack {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Stack{cursor: -1, limit: limit}
}

// Push records m as the newest state and drops any redo states. The
// oldest snapshot falls off once the limit is reached.
func (s *Stack) Push(comment string, m *model.Model, current model.ID) {
	s.entries = append(s.entries[:s.cursor+1], Snapshot{
		Comment: comment,
		Model:   m.Clone(),
		Current: current,
	})
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append([]Snapshot(nil), s.entries[over:]...)
	}
	s.cursor = len(s.entries) - 1
}

// CanUndo reports whether an earlier state exists.
func (s *Stack) CanUndo() bool { return s.cursor > 0 }

// CanRedo reports whether an undone state exists.
func (s *Stack) CanRedo() bool { return s.cursor >= 0 && s.cursor < len(s.entries)-1 }

// Undo steps back one state and returns a copy of it.
func (s *Stack) Undo() (Snapshot, bool) {
	if !s.CanUndo() {
		return Snapshot{}, false
	}
	s.cursor--
	return s.at(s.cursor), true
}

// Redo steps forward one state and returns a copy of it.
func (s *Stack) Redo() (Snapshot, bool) {
	if !s.CanRedo() {
		return Snapshot{}, false
	}
	s.cursor++
	return s.at(s.cursor), true
}

// Current returns a copy of the live state.
func (s *Stack) Current() (Snapshot, bool) {
	if s.cursor < 0 {
		return Snapshot{}, false
	}
	return s.at(s.cursor), true
}

// Len returns the number of stored snapshots.
func (s *Stack) Len() int { return len(s.entries) }

// Comments lists snapshot comments oldest first, for a history panel.
func (s *Stack) Comments() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Comment
	}
	return out
}

func (s *Stack) at(i int) Snapshot {
	e := s.entries[i]
	e.Model = e.Model.Clone()
	return e
}
