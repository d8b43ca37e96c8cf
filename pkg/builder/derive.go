package builder

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/expr"
	"github.com/chazu/kerf/pkg/model"
)

// xform is the closed-form transform of a derivation group. The same
// expressions generate derived entities (evaluated once) and pin them
// during a solve (as equations), so the two can never disagree.
type xform struct {
	kind   model.GroupKind
	offset expr.Vec
	angle  *expr.Expr
	origin model.Vec3
	axis   model.Vec3 // unit
}

func (b *builder) xform() xform {
	return xform{
		kind:   b.g.Kind,
		offset: b.groupOffset(),
		angle:  b.groupAngle(),
		origin: b.g.Transform.Origin,
		axis:   b.g.Transform.Axis.Unit(),
	}
}

// Instances returns the instance numbers a derivation group produces for
// each source entity.
func Instances(g *model.Group) []int {
	switch g.Kind {
	case model.GroupExtrude, model.GroupRevolve:
		return []int{0, 1}
	case model.GroupArray:
		n := g.Transform.Count
		if n < 1 {
			n = 1
		}
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	case model.GroupClone, model.GroupMirror:
		return []int{1}
	case model.GroupLathe:
		return []int{0}
	}
	return nil
}

func (t xform) point(p expr.Vec, k int) expr.Vec {
	switch t.kind {
	case model.GroupExtrude, model.GroupArray, model.GroupClone:
		return p.Plus(t.offset.ScaledBy(expr.Const(float64(k))))
	case model.GroupMirror:
		n := expr.VecConst(t.axis)
		d := p.Minus(expr.VecConst(t.origin)).Dot(n)
		return p.Minus(n.ScaledBy(d.ScaledBy(2)))
	case model.GroupRevolve:
		o := expr.VecConst(t.origin)
		return o.Plus(t.rotate(p.Minus(o), t.angle.ScaledBy(float64(k))))
	}
	return p
}

// rotate turns v about the axis by theta (Rodrigues).
func (t xform) rotate(v expr.Vec, theta *expr.Expr) expr.Vec {
	a := expr.VecConst(t.axis)
	cos, sin := theta.Cos(), theta.Sin()
	return v.ScaledBy(cos).
		Plus(a.Cross(v).ScaledBy(sin)).
		Plus(a.ScaledBy(a.Dot(v).Times(expr.Const(1).Minus(cos))))
}

func (t xform) quat(q expr.Quat, k int) expr.Quat {
	switch t.kind {
	case model.GroupMirror:
		// Half-turn about the plane normal: a reflection reverses the
		// winding, and the flipped normal restores it.
		return expr.QuatConst(model.QuatFromAxisAngle(t.axis, math.Pi)).Mul(q)
	case model.GroupRevolve:
		half := t.angle.ScaledBy(float64(k) / 2)
		s := half.Sin()
		r := expr.Quat{
			W: half.Cos(),
			X: s.ScaledBy(t.axis.X),
			Y: s.ScaledBy(t.axis.Y),
			Z: s.ScaledBy(t.axis.Z),
		}
		return r.Mul(q)
	}
	return q
}

// derive returns the kind and per-control-point expressions of the k-th
// copy of src. ok is false for kinds that are not replicated.
func (b *builder) derive(src *model.Entity, t xform, k int) (model.EntityKind, [][]*expr.Expr, bool, error) {
	world := func(i int) ([]*expr.Expr, error) {
		p, err := b.world(src, i)
		if err != nil {
			return nil, err
		}
		return t.point(p, k).Components(), nil
	}
	orient := func() ([]*expr.Expr, error) {
		q, err := b.orientation(src)
		if err != nil {
			return nil, err
		}
		return t.quat(q, k).Components(), nil
	}

	var kind model.EntityKind
	var plan []func() ([]*expr.Expr, error)
	pt := func(i int) func() ([]*expr.Expr, error) {
		return func() ([]*expr.Expr, error) { return world(i) }
	}
	switch src.Kind {
	case model.EntityPoint2D, model.EntityPoint3D:
		kind, plan = model.EntityPoint3D, append(plan, pt(0))
	case model.EntityLine2D, model.EntityLine3D:
		kind, plan = model.EntityLine3D, append(plan, pt(0), pt(1))
	case model.EntityArc2D, model.EntityArc3D:
		kind, plan = model.EntityArc3D, append(plan, pt(0), pt(1), pt(2), orient)
	case model.EntityCircle2D, model.EntityCircle3D:
		radius := func() ([]*expr.Expr, error) {
			return []*expr.Expr{b.param(src, model.CircleRadius, 0)}, nil
		}
		kind, plan = model.EntityCircle3D, append(plan, pt(0), radius, orient)
	case model.EntityCubic:
		kind, plan = model.EntityCubic, append(plan, pt(0), pt(1), pt(2), pt(3))
	default:
		return 0, nil, false, nil
	}

	out := make([][]*expr.Expr, len(plan))
	for i, step := range plan {
		xs, err := step()
		if err != nil {
			return 0, nil, false, err
		}
		out[i] = xs
	}
	return kind, out, true, nil
}

// emitDerivation pins every generated entity of the target group to the
// transform of its source.
func (b *builder) emitDerivation() error {
	if !b.g.Kind.IsDerivation() {
		return nil
	}
	t := b.xform()
	for _, e := range b.entities {
		if !e.Generated {
			continue
		}
		src := b.m.Entity(e.Source)
		if src == nil {
			return b.fail(e.ID, model.ErrDanglingReference, "source of generated")
		}
		kind, pts, ok, err := b.derive(src, t, e.Instance)
		if err != nil {
			return err
		}
		if !ok || kind != e.Kind {
			return b.fail(e.ID, ErrBadReference, "%s cannot be derived from a %s as", e.Kind, src.Kind)
		}
		for i, xs := range pts {
			for a, x := range xs {
				b.equation(b.param(e, i, a).Minus(x), nil)
			}
		}
	}
	return nil
}

// Derive computes the full set of entities derivation group g produces
// from its source group's current geometry, keyed deterministically by
// (group, source, instance). The caller merges them into the model.
func Derive(m *model.Model, g *model.Group) ([]*model.Entity, error) {
	if !g.Kind.IsDerivation() {
		return nil, nil
	}
	srcGroup := m.Group(g.Source)
	if srcGroup == nil {
		return nil, &Error{Group: g.ID, Msg: fmt.Sprintf("%s source %s", g.Kind, g.Source.Short()), Err: ErrNoSource}
	}
	if g.Kind == model.GroupMirror || g.Kind == model.GroupRevolve || g.Kind == model.GroupLathe {
		if g.Transform.Axis.Len() == 0 {
			return nil, &Error{Group: g.ID, Msg: fmt.Sprintf("%s axis", g.Kind), Err: ErrBadReference}
		}
	}

	b := newBuilder(m, g)
	sources := b.m.EntitiesIn(srcGroup.ID)
	for _, src := range sources {
		if err := b.include(g.ID, src.ID); err != nil {
			return nil, err
		}
	}
	b.allocEntities(nil)
	vals := b.sys.Values()
	t := b.xform()

	var out []*model.Entity
	for _, src := range sources {
		for _, k := range Instances(g) {
			kind, pts, ok, err := b.derive(src, t, k)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			e := &model.Entity{
				ID:           model.DerivedID(g.ID, src.ID, k),
				Kind:         kind,
				Group:        g.ID,
				Construction: src.Construction,
				Generated:    true,
				Source:       src.ID,
				Instance:     k,
			}
			for i, xs := range pts {
				for a, x := range xs {
					e.Params[i][a] = x.Eval(vals)
				}
			}
			out = append(out, e)
		}
	}
	return out, nil
}
