package builder

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/model"
)

// Measure returns the current value of the quantity a datum constraint
// relates: lengths in model units, angles in degrees. It is how
// measurement constraints report, and how new dimensions are seeded.
func Measure(m *model.Model, c *model.Constraint) (float64, error) {
	g := m.Group(c.Group)
	if g == nil {
		return 0, &Error{Group: c.Group, Object: c.ID, Msg: "measure", Err: model.ErrNotFound}
	}
	if !c.Kind.HasDatum() {
		return 0, &Error{Group: g.ID, Object: c.ID, Msg: fmt.Sprintf("%s has no value:", c.Kind), Err: ErrBadReference}
	}
	if err := c.CheckArity(); err != nil {
		return 0, &Error{Group: g.ID, Object: c.ID, Msg: err.Error(), Err: ErrBadReference}
	}
	b := newBuilder(m, g)
	for _, id := range c.ReferencedEntities() {
		if err := b.include(c.ID, id); err != nil {
			return 0, err
		}
	}
	b.allocEntities(nil)

	f, err := b.frameFor(c)
	if err != nil {
		return 0, err
	}
	pts, err := b.points(f, c)
	if err != nil {
		return 0, err
	}
	arg := func(i int) *model.Entity { return b.m.Entity(c.Entities[i]) }

	switch c.Kind {
	case model.ConstraintDistance:
		return b.eval(pts[1].Minus(pts[0]).Magnitude()), nil

	case model.ConstraintHorizontalDistance, model.ConstraintVerticalDistance:
		if !f.planar() {
			return 0, b.fail(c.ID, ErrNoWorkplane, "%s constraint", c.Kind)
		}
		d := pts[1].Minus(pts[0])
		if c.Kind == model.ConstraintHorizontalDistance {
			return math.Abs(b.eval(d.X)), nil
		}
		return math.Abs(b.eval(d.Y)), nil

	case model.ConstraintPointLineDistance:
		d, err := b.pointLineDistance(f, pts[0], arg(0))
		if err != nil {
			return 0, err
		}
		return math.Abs(b.eval(d)), nil

	case model.ConstraintDiameter:
		r, err := b.radius(arg(0))
		if err != nil {
			return 0, err
		}
		return 2 * b.eval(r), nil

	case model.ConstraintAngle, model.ConstraintLengthRatio:
		da, err := b.direction(f, arg(0))
		if err != nil {
			return 0, err
		}
		db, err := b.direction(f, arg(1))
		if err != nil {
			return 0, err
		}
		la, lb := b.eval(da.Magnitude()), b.eval(db.Magnitude())
		if la == 0 || lb == 0 {
			return 0, b.fail(c.ID, ErrBadReference, "zero-length line in")
		}
		if c.Kind == model.ConstraintLengthRatio {
			return la / lb, nil
		}
		cos := b.eval(da.Dot(db)) / (la * lb)
		if c.Other {
			cos = -cos
		}
		return degrees(math.Acos(math.Max(-1, math.Min(1, cos)))), nil
	}
	return 0, b.fail(c.ID, ErrBadReference, "cannot measure %s", c.Kind)
}
