// Package solver hands one group at a time to the numeric engine and
// writes the solution back into the model.
//
// The engine's working state is single-instance. A Host owns it and lends
// it out through Sessions; only one Session exists at a time:
//
//	sess := host.Acquire()
//	defer sess.Release()
//	res, err := sess.Solve(m, group, solver.Options{})
package solver

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/kerf/pkg/builder"
	"github.com/chazu/kerf/pkg/logger"
	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/numeric"
)

// ErrReleased is returned by a Session used after Release.
var ErrReleased = errors.New("solver session released")

// Options adjust one solve.
type Options struct {
	Exclude  model.ID         // constraint left out of the system
	Dragged  []model.PointRef // soft-pinned control points
	WantFree bool             // report the points that can still move
}

// Result is the outcome of one solve.
type Result struct {
	Verdict    numeric.Verdict
	DOF        int
	Rank       int
	Iterations int
	Free       []model.PointRef // only with Options.WantFree
}

// Host serializes access to a numeric engine.
type Host struct {
	mu      sync.Mutex
	engine  numeric.Engine
	log     *logger.Logger
	scratch *builder.System
	solves  uint64
}

// NewHost wraps engine. A nil log discards output.
func NewHost(engine numeric.Engine, log *logger.Logger) *Host {
	if log == nil {
		log = logger.Nop()
	}
	return &Host{engine: engine, log: log}
}

// Acquire blocks until the engine is free and returns the Session that
// owns it. The caller must Release it.
func (h *Host) Acquire() *Session {
	h.mu.Lock()
	return &Session{host: h}
}

// Solves returns how many solves the host has run.
func (h *Host) Solves() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.solves
}

// Solve acquires a session for a single solve.
func (h *Host) Solve(m *model.Model, group model.ID, opts Options) (Result, error) {
	sess := h.Acquire()
	defer sess.Release()
	return sess.Solve(m, group, opts)
}

// Session is exclusive use of a Host's engine.
type Session struct {
	host *Host
}

// Release clears the scratch system and frees the engine. Calling it more
// than once is harmless.
func (s *Session) Release() {
	h := s.host
	if h == nil {
		return
	}
	s.host = nil
	h.scratch = nil
	h.mu.Unlock()
}

// Solve builds and solves group. On a converged verdict the solved values
// of the group's own entities, its transform and its constraints'
// auxiliary values are written back, and measurement constraints are
// refreshed; nothing outside the group changes. On any other verdict the
// model is untouched.
//
// Hard inconsistencies in the model come back as errors; solver outcomes
// are always data.
func (s *Session) Solve(m *model.Model, group model.ID, opts Options) (Result, error) {
	h := s.host
	if h == nil {
		return Result{}, ErrReleased
	}
	sys, err := builder.Build(m, group, builder.Options{Exclude: opts.Exclude, Dragged: opts.Dragged})
	if err != nil {
		return Result{}, err
	}
	h.scratch = sys
	defer func() { h.scratch = nil }()

	out := h.engine.Solve(&sys.System)
	h.solves++

	res := Result{
		Verdict:    out.Verdict,
		DOF:        out.DOF,
		Rank:       out.Rank,
		Iterations: out.Iterations,
	}
	if opts.WantFree {
		res.Free = freePoints(sys, out.Free)
	}

	h.log.Debug("solved group",
		"group", group,
		"verdict", out.Verdict.String(),
		"dof", out.DOF,
		"params", len(sys.Params),
		"equations", len(sys.Equations),
		"iterations", out.Iterations)

	if !out.Verdict.Converged() {
		return res, nil
	}
	writeBack(m, sys)
	if err := refreshMeasurements(m, group); err != nil {
		return res, err
	}
	return res, nil
}

// FindRemovable re-solves group once per suspect constraint with that
// constraint left out and returns those whose absence still converges.
// Suspects are the constraints with an equation in a redundancy of the
// full system; a group without one has nothing removable. The model is
// not modified.
func (s *Session) FindRemovable(m *model.Model, group model.ID) ([]model.ID, error) {
	h := s.host
	if h == nil {
		return nil, ErrReleased
	}
	suspects, err := s.suspects(m, group)
	if err != nil {
		return nil, err
	}
	var removable []model.ID
	for _, id := range suspects {
		sys, err := builder.Build(m, group, builder.Options{Exclude: id})
		if err != nil {
			return nil, err
		}
		h.scratch = sys
		out := h.engine.Solve(&sys.System)
		h.solves++
		h.scratch = nil
		if out.Verdict.Converged() {
			removable = append(removable, id)
		}
	}
	h.log.Debug("redundancy probe", "group", group, "suspects", len(suspects), "removable", len(removable))
	return removable, nil
}

// suspects solves the full system and maps its dependent equations back
// to their constraints, in equation order.
func (s *Session) suspects(m *model.Model, group model.ID) ([]model.ID, error) {
	h := s.host
	sys, err := builder.Build(m, group, builder.Options{})
	if err != nil {
		return nil, err
	}
	h.scratch = sys
	out := h.engine.Solve(&sys.System)
	h.solves++
	h.scratch = nil

	seen := make(map[model.ID]bool)
	var ids []model.ID
	for _, row := range out.Dependent {
		tag := sys.Equations[row].Tag
		if tag < 0 || tag >= len(sys.Tags) {
			continue
		}
		id := sys.Tags[tag]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// writeBack copies unknowns into their owners. Builder only makes
// unknowns of the target group, but the owner check keeps write-back
// scoped even so.
func writeBack(m *model.Model, sys *builder.System) {
	for i, p := range sys.Params {
		if p.Known {
			continue
		}
		key := sys.Keys[i]
		switch key.Owner {
		case builder.OwnerEntity:
			e := m.Entity(key.ID)
			if e == nil || e.Group != sys.Group {
				continue
			}
			e.Params[key.Point][key.Axis] = p.Value
		case builder.OwnerGroup:
			g := m.Group(key.ID)
			if g == nil || g.ID != sys.Group {
				continue
			}
			switch key.Point {
			case model.GroupOffsetPoint:
				setAxis(&g.Transform.Offset, key.Axis, p.Value)
			case model.GroupAnglePoint:
				g.Transform.Angle = p.Value
			}
		case builder.OwnerConstraint:
			c := m.Constraint(key.ID)
			if c == nil || c.Group != sys.Group {
				continue
			}
			c.Aux = p.Value
			c.AuxValid = true
		}
	}
}

func setAxis(v *model.Vec3, axis int, x float64) {
	switch axis {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	case 2:
		v.Z = x
	}
}

func refreshMeasurements(m *model.Model, group model.ID) error {
	for _, c := range m.ConstraintsIn(group) {
		if !c.Measurement || !c.Kind.HasDatum() {
			continue
		}
		v, err := builder.Measure(m, c)
		if err != nil {
			return fmt.Errorf("measure %s: %w", c.ID.Short(), err)
		}
		c.Datum = v
	}
	return nil
}

// freePoints maps free entity parameters to their control points.
func freePoints(sys *builder.System, free []int) []model.PointRef {
	seen := make(map[model.PointRef]bool)
	var out []model.PointRef
	for _, i := range free {
		key := sys.Keys[i]
		if key.Owner != builder.OwnerEntity {
			continue
		}
		r := model.PointRef{Entity: key.ID, Point: key.Point}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity.Less(out[j].Entity)
		}
		return out[i].Point < out[j].Point
	})
	return out
}
