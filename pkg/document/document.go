// Package document holds an editable geometry model together with its
// undo history and regenerated solids, and keeps them consistent: every
// committed edit marks the groups it touched, regenerates the timeline in
// order and records a snapshot.
package document

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/logger"
	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/profile"
	"github.com/chazu/kerf/pkg/solver"
)

// ErrNoCurrentGroup is returned by SolveCurrent on an empty document.
var ErrNoCurrentGroup = errors.New("no current group")

// Options tune regeneration.
type Options struct {
	Profile      profile.Options
	HistoryLimit int
	// Tolerance is the drift below which regenerated entities keep their
	// stored values.
	Tolerance float64
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{
		Profile:      profile.DefaultOptions(),
		HistoryLimit: history.DefaultLimit,
		Tolerance:    1e-9,
	}
}

// Document is one open model.
type Document struct {
	ID      model.ID
	Name    string
	Model   *model.Model
	Current model.ID // group being edited

	history *history.Stack
	host    *solver.Host
	kernel  kernel.Kernel
	log     *logger.Logger
	opts    Options

	// Solid caches are rebuilt from the model and never snapshotted.
	shapes map[model.ID]kernel.Solid // per group
	bodies map[model.ID]kernel.Solid // per body, cumulative
}

// New returns an empty document whose first snapshot is the empty model.
func New(name string, host *solver.Host, k kernel.Kernel, log *logger.Logger, opts Options) *Document {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultOptions().Tolerance
	}
	d := &Document{
		ID:      model.NewID(),
		Name:    name,
		Model:   model.New(),
		history: history.New(opts.HistoryLimit),
		host:    host,
		kernel:  k,
		opts:    opts,
		shapes:  make(map[model.ID]kernel.Solid),
		bodies:  make(map[model.ID]kernel.Solid),
	}
	d.log = log.With("document", d.ID)
	d.history.Push("new document", d.Model, d.Current)
	return d
}

// CurrentGroup returns the group being edited, or nil.
func (d *Document) CurrentGroup() *model.Group {
	return d.Model.Group(d.Current)
}

// SetCurrent selects the group to edit.
func (d *Document) SetCurrent(group model.ID) error {
	if d.Model.Group(group) == nil {
		return fmt.Errorf("group %s: %w", group.Short(), model.ErrNotFound)
	}
	d.Current = group
	return nil
}

// FixCurrentGroup points Current at an existing group: the same one if it
// survives, otherwise the last group of the timeline.
func (d *Document) FixCurrentGroup() {
	if d.Model.Group(d.Current) != nil {
		return
	}
	if last := d.Model.Last(); last != nil {
		d.Current = last.ID
		return
	}
	d.Current = model.ID{}
}

// Apply runs an edit against the model. If op fails the model is restored
// to its state before the edit and the error returned. Otherwise every
// group the edit touched is marked for regeneration and the document is
// rebuilt under comment. A group the edit added becomes current.
func (d *Document) Apply(comment string, op func(m *model.Model) error) error {
	before := d.Model.Clone()
	if err := op(d.Model); err != nil {
		d.Model = before
		d.log.Warn("edit reverted", "edit", comment, "error", err)
		return fmt.Errorf("%s: %w", comment, err)
	}
	touched := changedGroups(before, d.Model)
	for _, id := range touched {
		d.markDirty(d.Model.Group(id))
		if before.Group(id) == nil {
			// a new group becomes the one being edited
			d.Current = id
		}
	}
	d.FixCurrentGroup()
	d.log.Debug("edit applied", "edit", comment, "touched", len(touched))
	d.Rebuild(comment)
	return nil
}

// Load replaces the model wholesale, regenerates everything and records
// the result as one undoable step.
func (d *Document) Load(comment string, m *model.Model) {
	d.Model = m
	for _, g := range m.Groups {
		g.MarkAll()
	}
	d.resetSolids()
	d.FixCurrentGroup()
	d.Rebuild(comment)
}

// Rebuild regenerates pending groups and snapshots the result.
func (d *Document) Rebuild(comment string) {
	d.UpdatePending()
	d.history.Push(comment, d.Model, d.Current)
}

// SolveCurrent re-solves only the current group, with dragged points
// soft-pinned. The result lists the control points that are still free to
// move. Other groups are marked but not regenerated until the next
// Rebuild.
func (d *Document) SolveCurrent(dragged []model.PointRef) (solver.Result, error) {
	g := d.CurrentGroup()
	if g == nil {
		return solver.Result{}, ErrNoCurrentGroup
	}
	g.Status = nil
	res, err := d.solve(g, solver.Options{Dragged: dragged, WantFree: true})
	if err != nil {
		return res, err
	}
	g.SolidPending = true
	for _, dep := range d.Model.Dependents(g.ID) {
		dep.SolvePending, dep.SolidPending = true, true
	}
	return res, nil
}

// CanUndo reports whether Undo has a state to go back to.
func (d *Document) CanUndo() bool { return d.history.CanUndo() }

// CanRedo reports whether Redo has a state to go forward to.
func (d *Document) CanRedo() bool { return d.history.CanRedo() }

// Undo installs the previous snapshot.
func (d *Document) Undo() bool {
	snap, ok := d.history.Undo()
	if !ok {
		return false
	}
	d.install(snap)
	d.log.Info("undo", "to", snap.Comment)
	return true
}

// Redo installs the next snapshot.
func (d *Document) Redo() bool {
	snap, ok := d.history.Redo()
	if !ok {
		return false
	}
	d.install(snap)
	d.log.Info("redo", "to", snap.Comment)
	return true
}

// install makes snap live. A snapshot carries declared state only, so
// every group is regenerated to restore the solid caches.
func (d *Document) install(snap history.Snapshot) {
	d.Model = snap.Model
	d.Current = snap.Current
	d.FixCurrentGroup()
	for _, g := range d.Model.Groups {
		g.MarkAll()
	}
	d.resetSolids()
	d.UpdatePending()
}

// History lists the snapshot comments, oldest first.
func (d *Document) History() []string { return d.history.Comments() }

// Shape returns the solid a group contributes, if any.
func (d *Document) Shape(group model.ID) kernel.Solid { return d.shapes[group] }

// Body is one cumulative solid.
type Body struct {
	ID    model.ID // zero for groups without a body
	Name  string
	Solid kernel.Solid
}

// Bodies returns the cumulative solids in timeline order of their first
// contributing group.
func (d *Document) Bodies() []Body {
	var out []Body
	seen := make(map[model.ID]bool)
	for _, g := range d.Model.Timeline() {
		if d.shapes[g.ID] == nil || seen[g.Body] {
			continue
		}
		seen[g.Body] = true
		s := d.bodies[g.Body]
		if s == nil {
			continue
		}
		name := g.Name
		if bg := d.Model.Group(g.Body); bg != nil {
			name = bg.Name
		}
		out = append(out, Body{ID: g.Body, Name: name, Solid: s})
	}
	return out
}

func (d *Document) resetSolids() {
	d.shapes = make(map[model.ID]kernel.Solid)
	d.bodies = make(map[model.ID]kernel.Solid)
}

// markDirty sets every phase of g and propagates to its dependents.
func (d *Document) markDirty(g *model.Group) {
	if g == nil {
		return
	}
	g.MarkAll()
	for _, dep := range d.Model.Dependents(g.ID) {
		dep.MarkAll()
	}
}

// changedGroups lists the groups of after whose own fields, entities or
// constraints differ from before. Regeneration bookkeeping is ignored.
func changedGroups(before, after *model.Model) []model.ID {
	touched := make(map[model.ID]bool)
	for id, g := range after.Groups {
		old := before.Group(id)
		if old == nil || !reflect.DeepEqual(declared(old), declared(g)) {
			touched[id] = true
		}
	}
	for id, e := range after.Entities {
		if old := before.Entity(id); old == nil || !reflect.DeepEqual(old, e) {
			touched[e.Group] = true
		}
	}
	for id, e := range before.Entities {
		if after.Entity(id) == nil {
			touched[e.Group] = true
		}
	}
	for id, c := range after.Constraints {
		if old := before.Constraint(id); old == nil || !reflect.DeepEqual(old, c) {
			touched[c.Group] = true
		}
	}
	for id, c := range before.Constraints {
		if after.Constraint(id) == nil {
			touched[c.Group] = true
		}
	}

	var out []model.ID
	for _, g := range after.Timeline() {
		if touched[g.ID] {
			out = append(out, g.ID)
		}
	}
	return out
}

func declared(g *model.Group) model.Group {
	c := *g
	c.GeneratePending, c.SolvePending, c.SolidPending = false, false, false
	c.DOF, c.Verdict = 0, ""
	c.Status = nil
	return c
}
