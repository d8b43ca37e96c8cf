package builder

import (
	"errors"
	"fmt"

	"github.com/chazu/kerf/pkg/model"
)

var (
	// ErrBadReference marks a reference to an entity or control point of
	// the wrong kind for its use.
	ErrBadReference = errors.New("bad reference")
	// ErrNoWorkplane marks a planar relation with no workplane to measure in.
	ErrNoWorkplane = errors.New("no workplane")
	// ErrNoSource marks a derivation group whose source group is missing.
	ErrNoSource = errors.New("no source group")
)

// Error is a hard inconsistency found while assembling a group's system.
// It aborts the group; it is never a solver outcome.
type Error struct {
	Group  model.ID
	Object model.ID // offending entity or constraint, if any
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Object.IsZero() {
		return fmt.Sprintf("group %s: %s: %v", e.Group.Short(), e.Msg, e.Err)
	}
	return fmt.Sprintf("group %s: %s %s: %v", e.Group.Short(), e.Msg, e.Object.Short(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
