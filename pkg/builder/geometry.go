package builder

import (
	"math"

	"github.com/chazu/kerf/pkg/expr"
	"github.com/chazu/kerf/pkg/model"
)

// frame is the coordinate system a relation is measured in: a workplane's
// (u, v) or, when wp is nil, world space.
type frame struct {
	wp *model.Entity
}

func (f frame) planar() bool { return f.wp != nil }

func (b *builder) workplane(owner model.ID, id model.ID) (*model.Entity, error) {
	wp := b.m.Entity(id)
	switch {
	case id.IsZero():
		return nil, b.fail(owner, ErrNoWorkplane, "entity")
	case wp == nil:
		return nil, b.fail(owner, model.ErrDanglingReference, "workplane %s of", id.Short())
	case wp.Kind != model.EntityWorkplane:
		return nil, b.fail(owner, ErrBadReference, "workplane is a %s in", wp.Kind)
	}
	return wp, nil
}

// ownFrame is the frame an entity's coordinates are stored in.
func (b *builder) ownFrame(e *model.Entity) (frame, error) {
	if !e.InWorkplane() {
		return frame{}, nil
	}
	wp, err := b.workplane(e.ID, e.Workplane)
	return frame{wp: wp}, err
}

func (b *builder) vec3(e *model.Entity, point int) expr.Vec {
	return expr.Vec{X: b.param(e, point, 0), Y: b.param(e, point, 1), Z: b.param(e, point, 2)}
}

func (b *builder) quat(e *model.Entity, point int) expr.Quat {
	return expr.Quat{W: b.param(e, point, 0), X: b.param(e, point, 1), Y: b.param(e, point, 2), Z: b.param(e, point, 3)}
}

func (b *builder) uv(e *model.Entity, point int) expr.Vec {
	return expr.Vec{X: b.param(e, point, 0), Y: b.param(e, point, 1), Z: expr.Const(0)}
}

// world returns control point i of e in world coordinates.
func (b *builder) world(e *model.Entity, i int) (expr.Vec, error) {
	if !e.IsPosition(i) {
		return expr.Vec{}, b.fail(e.ID, ErrBadReference, "control point %d is not a position of", i)
	}
	if !e.InWorkplane() {
		return b.vec3(e, i), nil
	}
	wp, err := b.workplane(e.ID, e.Workplane)
	if err != nil {
		return expr.Vec{}, err
	}
	q := b.quat(wp, model.PlaneNormal)
	p := b.uv(e, i)
	return b.vec3(wp, model.PlaneOrigin).Plus(q.U().ScaledBy(p.X)).Plus(q.V().ScaledBy(p.Y)), nil
}

// pos returns control point i of e in frame f.
func (b *builder) pos(f frame, e *model.Entity, i int) (expr.Vec, error) {
	if f.planar() && e.InWorkplane() && e.Workplane == f.wp.ID {
		if !e.IsPosition(i) {
			return expr.Vec{}, b.fail(e.ID, ErrBadReference, "control point %d is not a position of", i)
		}
		return b.uv(e, i), nil
	}
	w, err := b.world(e, i)
	if err != nil || !f.planar() {
		return w, err
	}
	return b.project(f, w.Minus(b.vec3(f.wp, model.PlaneOrigin))), nil
}

// project expresses a world-space vector in the frame's (u, v) axes.
func (b *builder) project(f frame, v expr.Vec) expr.Vec {
	q := b.quat(f.wp, model.PlaneNormal)
	return expr.Vec{X: v.Dot(q.U()), Y: v.Dot(q.V()), Z: expr.Const(0)}
}

func (b *builder) ref(r model.PointRef, f frame) (expr.Vec, error) {
	e := b.m.Entity(r.Entity)
	if e == nil {
		return expr.Vec{}, b.fail(r.Entity, model.ErrDanglingReference, "point on")
	}
	return b.pos(f, e, r.Point)
}

// orientation returns the quaternion an entity's normal is stored in.
func (b *builder) orientation(e *model.Entity) (expr.Quat, error) {
	switch e.Kind {
	case model.EntityArc3D:
		return b.quat(e, model.ArcNormal), nil
	case model.EntityCircle3D:
		return b.quat(e, model.CircleNormal), nil
	case model.EntityWorkplane, model.EntityImported:
		return b.quat(e, model.PlaneNormal), nil
	}
	if e.InWorkplane() {
		wp, err := b.workplane(e.ID, e.Workplane)
		if err != nil {
			return expr.Quat{}, err
		}
		return b.quat(wp, model.PlaneNormal), nil
	}
	return expr.Quat{}, b.fail(e.ID, ErrBadReference, "%s has no normal:", e.Kind)
}

// radius returns the radius of a circle or arc.
func (b *builder) radius(e *model.Entity) (*expr.Expr, error) {
	switch e.Kind {
	case model.EntityCircle2D, model.EntityCircle3D:
		return b.param(e, model.CircleRadius, 0), nil
	case model.EntityArc2D, model.EntityArc3D:
		f, err := b.ownFrame(e)
		if err != nil {
			return nil, err
		}
		c, _ := b.pos(f, e, model.ArcCenter)
		p, _ := b.pos(f, e, model.ArcFrom)
		return p.Minus(c).Magnitude(), nil
	}
	return nil, b.fail(e.ID, ErrBadReference, "%s has no radius:", e.Kind)
}

// direction returns end minus start of a line in frame f.
func (b *builder) direction(f frame, e *model.Entity) (expr.Vec, error) {
	if e.Kind != model.EntityLine2D && e.Kind != model.EntityLine3D {
		return expr.Vec{}, b.fail(e.ID, ErrBadReference, "%s is not a line:", e.Kind)
	}
	a, err := b.pos(f, e, model.PointStart)
	if err != nil {
		return expr.Vec{}, err
	}
	z, err := b.pos(f, e, model.PointEnd)
	return z.Minus(a), err
}

// tangent returns the tangent direction of a curve at its start, or at
// its end when atEnd is set. Its length is not normalized.
func (b *builder) tangent(f frame, e *model.Entity, atEnd bool) (expr.Vec, error) {
	switch e.Kind {
	case model.EntityLine2D, model.EntityLine3D:
		return b.direction(f, e)
	case model.EntityCubic:
		i, j := 0, 1
		if atEnd {
			i, j = 2, 3
		}
		p, err := b.pos(f, e, i)
		if err != nil {
			return expr.Vec{}, err
		}
		q, err := b.pos(f, e, j)
		return q.Minus(p), err
	case model.EntityArc2D, model.EntityArc3D:
		at := model.ArcFrom
		if atEnd {
			at = model.ArcTo
		}
		if f.planar() && e.InWorkplane() && e.Workplane == f.wp.ID {
			r := b.uv(e, at).Minus(b.uv(e, model.ArcCenter))
			return expr.Vec{X: r.Y.Negate(), Y: r.X, Z: expr.Const(0)}, nil
		}
		c, err := b.world(e, model.ArcCenter)
		if err != nil {
			return expr.Vec{}, err
		}
		p, _ := b.world(e, at)
		q, err := b.orientation(e)
		if err != nil {
			return expr.Vec{}, err
		}
		t := q.N().Cross(p.Minus(c))
		if f.planar() {
			return b.project(f, t), nil
		}
		return t, nil
	}
	return expr.Vec{}, b.fail(e.ID, ErrBadReference, "%s has no tangent:", e.Kind)
}

// circleBasis returns a circle or arc's center and in-plane axes in its
// own frame, plus that frame.
func (b *builder) circleBasis(e *model.Entity) (frame, expr.Vec, expr.Vec, expr.Vec, error) {
	f, err := b.ownFrame(e)
	if err != nil {
		return f, expr.Vec{}, expr.Vec{}, expr.Vec{}, err
	}
	c, err := b.pos(f, e, 0)
	if err != nil {
		return f, expr.Vec{}, expr.Vec{}, expr.Vec{}, err
	}
	if f.planar() {
		return f, c, expr.VecConst(model.Vec3{X: 1}), expr.VecConst(model.Vec3{Y: 1}), nil
	}
	q, err := b.orientation(e)
	if err != nil {
		return f, expr.Vec{}, expr.Vec{}, expr.Vec{}, err
	}
	return f, c, q.U(), q.V(), nil
}

// cross2 is the z component of a × b for planar vectors.
func cross2(a, b expr.Vec) *expr.Expr {
	return a.X.Times(b.Y).Minus(a.Y.Times(b.X))
}

// components returns the equations that make v zero in frame f.
func components(f frame, v expr.Vec) []*expr.Expr {
	if f.planar() {
		return []*expr.Expr{v.X, v.Y}
	}
	return v.Components()
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
func radians(deg float64) float64 { return deg * math.Pi / 180 }
