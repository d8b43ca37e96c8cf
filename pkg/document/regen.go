package document

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/kerf/pkg/builder"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/numeric"
	"github.com/chazu/kerf/pkg/profile"
	"github.com/chazu/kerf/pkg/solver"
	"github.com/samber/lo"
)

// UpdatePending walks the timeline once in ascending order and runs each
// group's pending phases (generate, solve, solid) before moving on, so no
// group is ever regenerated from stale upstream geometry.
func (d *Document) UpdatePending() {
	var ran int
	solids := false
	for _, g := range d.Model.Timeline() {
		if !g.Pending() {
			continue
		}
		ran++
		g.Status = nil
		if g.GeneratePending && !d.generate(g) {
			d.abandon(g)
			solids = true
			continue
		}
		if g.SolvePending {
			g.SolvePending = false
			g.SolidPending = true
			for _, dep := range d.Model.Dependents(g.ID) {
				dep.SolvePending, dep.SolidPending = true, true
			}
			if _, err := d.solve(g, solver.Options{}); err != nil {
				d.abandon(g)
				solids = true
				continue
			}
		}
		if g.SolidPending {
			d.rebuildSolid(g)
			solids = true
		}
	}
	if solids {
		d.combineBodies()
	}
	if ran > 0 {
		d.log.Info("regenerated", "groups", ran)
	}
}

// abandon clears a failed group's flags and its shape. Its error status
// stays until the next pass over it.
func (d *Document) abandon(g *model.Group) {
	g.GeneratePending, g.SolvePending, g.SolidPending = false, false, false
	delete(d.shapes, g.ID)
}

// generate synthesizes a derivation group's entities and merges them into
// the model. It reports false on a hard error.
func (d *Document) generate(g *model.Group) bool {
	g.GeneratePending = false
	g.SolvePending, g.SolidPending = true, true
	for _, dep := range d.Model.Dependents(g.ID) {
		if dep.Kind.IsDerivation() {
			dep.GeneratePending = true
		}
		dep.SolvePending, dep.SolidPending = true, true
	}
	if !g.Kind.IsDerivation() {
		return true
	}

	derived, err := builder.Derive(d.Model, g)
	if err != nil {
		g.Report(model.SeverityError, "generate: %v", err)
		d.log.Error("generate failed", "group", g.ID, "error", err)
		return false
	}

	keep := make(map[model.ID]bool, len(derived))
	added, refreshed := 0, 0
	for _, e := range derived {
		keep[e.ID] = true
		old := d.Model.Entity(e.ID)
		if old == nil {
			if err := d.Model.AddEntity(e); err != nil {
				g.Report(model.SeverityError, "generate: %v", err)
				d.log.Error("generate failed", "group", g.ID, "error", err)
				return false
			}
			added++
			continue
		}
		if d.refresh(old, e) {
			refreshed++
		}
	}

	var stale []model.ID
	for _, e := range d.Model.EntitiesIn(g.ID) {
		if e.Generated && !keep[e.ID] {
			stale = append(stale, e.ID)
		}
	}
	for _, id := range stale {
		removed, err := d.Model.RemoveEntity(id)
		if err != nil {
			continue
		}
		if len(removed) > 0 {
			g.Report(model.SeverityWarning, "removed %d constraint(s) on entities no longer generated", len(removed))
		}
	}

	d.log.Debug("generated", "group", g.ID, "kind", g.Kind.String(),
		"entities", len(derived), "added", added, "refreshed", refreshed, "pruned", len(stale))
	return true
}

// refresh copies fresh derived values into old where they drifted beyond
// tolerance. Untouched values stay bit-identical.
func (d *Document) refresh(old, fresh *model.Entity) bool {
	changed := false
	if old.Kind != fresh.Kind || old.Construction != fresh.Construction {
		old.Kind, old.Construction = fresh.Kind, fresh.Construction
		changed = true
	}
	for i, axes := range fresh.Layout() {
		for a := 0; a < axes; a++ {
			if math.Abs(old.Params[i][a]-fresh.Params[i][a]) > d.opts.Tolerance {
				old.Params[i][a] = fresh.Params[i][a]
				changed = true
			}
		}
	}
	return changed
}

// solve runs the solver on g and records the outcome as status messages.
// Redundant systems are diagnosed. Only hard model errors are returned.
func (d *Document) solve(g *model.Group, opts solver.Options) (solver.Result, error) {
	sess := d.host.Acquire()
	defer sess.Release()

	res, err := sess.Solve(d.Model, g.ID, opts)
	if err != nil {
		g.DOF, g.Verdict = 0, ""
		g.Report(model.SeverityError, "solve: %v", err)
		d.log.Error("solve failed", "group", g.ID, "error", err)
		return res, err
	}
	g.DOF, g.Verdict = res.DOF, res.Verdict.String()

	switch res.Verdict {
	case numeric.Okay:
		if res.DOF > 0 {
			g.Report(model.SeverityInfo, "%d degree(s) of freedom", res.DOF)
		}
	case numeric.RedundantOkay:
		g.Report(model.SeverityWarning, "redundant constraints")
	case numeric.DidntConverge:
		g.Report(model.SeverityError, "solve failed: constraints did not converge")
	case numeric.RedundantDidntConverge:
		g.Report(model.SeverityError, "solve failed: redundant constraints did not converge")
	case numeric.TooManyUnknowns:
		g.Report(model.SeverityError, "solve failed: too many unknowns")
	}

	if res.Verdict == numeric.RedundantOkay || res.Verdict == numeric.RedundantDidntConverge {
		removable, err := sess.FindRemovable(d.Model, g.ID)
		if err == nil && len(removable) > 0 {
			names := lo.Map(removable, func(id model.ID, _ int) string {
				return fmt.Sprintf("%s %s", d.Model.Constraint(id).Kind, id.Short())
			})
			g.Report(model.SeverityWarning, "removable: %s", strings.Join(names, ", "))
		}
	}

	if res.Verdict == numeric.Okay {
		d.log.Debug("solved", "group", g.ID, "dof", res.DOF)
	} else {
		d.log.Warn("solve verdict", "group", g.ID, "verdict", res.Verdict.String(), "dof", res.DOF)
	}
	return res, nil
}

// rebuildSolid refreshes the solid g contributes to its body.
func (d *Document) rebuildSolid(g *model.Group) {
	g.SolidPending = false
	delete(d.shapes, g.ID)

	s, err := d.shapeOf(g)
	if err != nil {
		g.Report(model.SeverityError, "solid: %v", err)
		d.log.Error("solid failed", "group", g.ID, "kind", g.Kind.String(), "error", err)
		return
	}
	if s != nil {
		d.shapes[g.ID] = s
	}
}

func (d *Document) shapeOf(g *model.Group) (kernel.Solid, error) {
	t := g.Transform
	switch g.Kind {
	case model.GroupExtrude:
		r, err := profile.Build(d.Model, g.Source, d.opts.Profile)
		if err != nil {
			return nil, err
		}
		return d.kernel.Extrude(r, t.Offset)

	case model.GroupRevolve, model.GroupLathe:
		r, err := profile.Build(d.Model, g.Source, d.opts.Profile)
		if err != nil {
			return nil, err
		}
		angle := t.Angle
		if g.Kind == model.GroupLathe {
			angle = 0
		}
		return d.kernel.Revolve(r, t.Origin, t.Axis, angle)

	case model.GroupArray, model.GroupClone:
		src := d.shapes[g.Source]
		if src == nil {
			return nil, nil
		}
		var out kernel.Solid
		for _, k := range builder.Instances(g) {
			s := src
			if k != 0 {
				s = d.kernel.Translate(src, t.Offset.Scale(float64(k)))
			}
			if out == nil {
				out = s
			} else {
				out = d.kernel.Union(out, s)
			}
		}
		return out, nil

	case model.GroupMirror:
		src := d.shapes[g.Source]
		if src == nil {
			return nil, nil
		}
		return d.kernel.Mirror(src, t.Origin, t.Axis), nil
	}
	return nil, nil
}

// combineBodies folds each body's group shapes together in timeline order.
func (d *Document) combineBodies() {
	d.bodies = make(map[model.ID]kernel.Solid)
	for _, g := range d.Model.Timeline() {
		s := d.shapes[g.ID]
		if s == nil {
			continue
		}
		acc := d.bodies[g.Body]
		switch {
		case acc == nil && g.Combine == model.CombineDifference:
			d.log.Debug("difference with empty body", "group", g.ID)
		case acc == nil:
			d.bodies[g.Body] = s
		case g.Combine == model.CombineDifference:
			d.bodies[g.Body] = d.kernel.Difference(acc, s)
		default:
			d.bodies[g.Body] = d.kernel.Union(acc, s)
		}
	}
}
