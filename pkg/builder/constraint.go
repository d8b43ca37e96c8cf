package builder

import (
	"math"

	"github.com/chazu/kerf/pkg/expr"
	"github.com/chazu/kerf/pkg/model"
)

// frameFor picks the frame a constraint is measured in: its own
// workplane, else the workplane every referenced entity shares, else
// world space.
func (b *builder) frameFor(c *model.Constraint) (frame, error) {
	if !c.Workplane.IsZero() {
		wp, err := b.workplane(c.ID, c.Workplane)
		return frame{wp: wp}, err
	}
	var shared model.ID
	for _, id := range c.ReferencedEntities() {
		e := b.m.Entity(id)
		if e == nil {
			return frame{}, b.fail(c.ID, model.ErrDanglingReference, "%s constraint", c.Kind)
		}
		if !e.InWorkplane() {
			return frame{}, nil
		}
		if shared.IsZero() {
			shared = e.Workplane
		} else if shared != e.Workplane {
			return frame{}, nil
		}
	}
	if shared.IsZero() {
		return frame{}, nil
	}
	wp, err := b.workplane(c.ID, shared)
	return frame{wp: wp}, err
}

func (b *builder) entityArg(c *model.Constraint, i int) (*model.Entity, error) {
	e := b.m.Entity(c.Entities[i])
	if e == nil {
		return nil, b.fail(c.ID, model.ErrDanglingReference, "%s constraint", c.Kind)
	}
	return e, nil
}

func (b *builder) points(f frame, c *model.Constraint) ([]expr.Vec, error) {
	out := make([]expr.Vec, len(c.Points))
	for i, r := range c.Points {
		p, err := b.ref(r, f)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// lineEnds returns a line's endpoints in f.
func (b *builder) lineEnds(f frame, e *model.Entity) (expr.Vec, expr.Vec, error) {
	if e.Kind != model.EntityLine2D && e.Kind != model.EntityLine3D {
		return expr.Vec{}, expr.Vec{}, b.fail(e.ID, ErrBadReference, "%s is not a line:", e.Kind)
	}
	a, err := b.pos(f, e, model.PointStart)
	if err != nil {
		return a, a, err
	}
	z, err := b.pos(f, e, model.PointEnd)
	return a, z, err
}

// emitConstraint dispatches on the constraint kind.
func (b *builder) emitConstraint(c *model.Constraint) error {
	if err := c.CheckArity(); err != nil {
		return b.fail(c.ID, ErrBadReference, "%v:", err)
	}
	f, err := b.frameFor(c)
	if err != nil {
		return err
	}
	pts, err := b.points(f, c)
	if err != nil {
		return err
	}
	eq := func(e *expr.Expr) { b.equation(e, c) }
	eqs := func(es []*expr.Expr) {
		for _, e := range es {
			eq(e)
		}
	}
	needPlane := func() error {
		if !f.planar() {
			return b.fail(c.ID, ErrNoWorkplane, "%s constraint", c.Kind)
		}
		return nil
	}

	switch c.Kind {
	case model.ConstraintCoincident:
		eqs(components(f, pts[0].Minus(pts[1])))

	case model.ConstraintHorizontal, model.ConstraintVertical:
		if err := needPlane(); err != nil {
			return err
		}
		a, z := expr.Vec{}, expr.Vec{}
		if len(pts) == 2 {
			a, z = pts[0], pts[1]
		} else {
			l, err := b.entityArg(c, 0)
			if err != nil {
				return err
			}
			if a, z, err = b.lineEnds(f, l); err != nil {
				return err
			}
		}
		if c.Kind == model.ConstraintHorizontal {
			eq(a.Y.Minus(z.Y))
		} else {
			eq(a.X.Minus(z.X))
		}

	case model.ConstraintDistance:
		eq(pts[1].Minus(pts[0]).Magnitude().Minus(expr.Const(c.Datum)))

	case model.ConstraintHorizontalDistance, model.ConstraintVerticalDistance:
		if err := needPlane(); err != nil {
			return err
		}
		d := pts[1].Minus(pts[0]).X
		if c.Kind == model.ConstraintVerticalDistance {
			d = pts[1].Minus(pts[0]).Y
		}
		eq(d.ScaledBy(sign(b.eval(d))).Minus(expr.Const(c.Datum)))

	case model.ConstraintPointLineDistance:
		l, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		d, err := b.pointLineDistance(f, pts[0], l)
		if err != nil {
			return err
		}
		eq(d.ScaledBy(sign(b.eval(d))).Minus(expr.Const(c.Datum)))

	case model.ConstraintAngle, model.ConstraintParallel, model.ConstraintPerpendicular,
		model.ConstraintEqualLength, model.ConstraintLengthRatio:
		la, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		lb, err := b.entityArg(c, 1)
		if err != nil {
			return err
		}
		da, err := b.direction(f, la)
		if err != nil {
			return err
		}
		db, err := b.direction(f, lb)
		if err != nil {
			return err
		}
		switch c.Kind {
		case model.ConstraintAngle:
			if c.Other {
				db = db.Negate()
			}
			cos := expr.Const(math.Cos(radians(c.Datum)))
			eq(da.Dot(db).Minus(da.Magnitude().Times(db.Magnitude()).Times(cos)))
		case model.ConstraintParallel:
			b.emitParallel(f, c, da, db)
		case model.ConstraintPerpendicular:
			eq(da.Dot(db))
		case model.ConstraintEqualLength:
			eq(da.Magnitude().Minus(db.Magnitude()))
		case model.ConstraintLengthRatio:
			eq(da.Magnitude().Minus(db.Magnitude().ScaledBy(c.Datum)))
		}

	case model.ConstraintTangent:
		ea, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		eb, err := b.entityArg(c, 1)
		if err != nil {
			return err
		}
		ta, err := b.tangent(f, ea, c.Other)
		if err != nil {
			return err
		}
		tb, err := b.tangent(f, eb, c.Other2)
		if err != nil {
			return err
		}
		b.emitParallel(f, c, ta, tb)

	case model.ConstraintPointOnLine:
		l, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		a, z, err := b.lineEnds(f, l)
		if err != nil {
			return err
		}
		p, d := pts[0], z.Minus(a)
		t := b.aux(c, func() float64 {
			dd := b.eval(d.Dot(d))
			if dd == 0 {
				return 0
			}
			return b.eval(p.Minus(a).Dot(d)) / dd
		})
		eqs(components(f, p.Minus(a.Plus(d.ScaledBy(t)))))

	case model.ConstraintPointOnCircle:
		e, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		if !e.HasRadius() {
			return b.fail(c.ID, ErrBadReference, "%s constraint on a %s", c.Kind, e.Kind)
		}
		cf, center, u, v, err := b.circleBasis(e)
		if err != nil {
			return err
		}
		p, err := b.ref(c.Points[0], cf)
		if err != nil {
			return err
		}
		r, err := b.radius(e)
		if err != nil {
			return err
		}
		rel := p.Minus(center)
		phi := b.aux(c, func() float64 {
			return math.Atan2(b.eval(rel.Dot(v)), b.eval(rel.Dot(u)))
		})
		onCircle := center.Plus(u.ScaledBy(phi.Cos()).Plus(v.ScaledBy(phi.Sin())).ScaledBy(r))
		eqs(components(cf, p.Minus(onCircle)))

	case model.ConstraintPointOnCubic:
		e, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		if e.Kind != model.EntityCubic {
			return b.fail(c.ID, ErrBadReference, "%s constraint on a %s", c.Kind, e.Kind)
		}
		var ctl [4]expr.Vec
		for i := range ctl {
			if ctl[i], err = b.pos(f, e, i); err != nil {
				return err
			}
		}
		p := pts[0]
		t := b.aux(c, func() float64 { return b.nearestOnCubic(ctl, p) })
		eqs(components(f, p.Minus(bezier(ctl, t))))

	case model.ConstraintSameOrientation:
		ea, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		eb, err := b.entityArg(c, 1)
		if err != nil {
			return err
		}
		qa, err := b.orientation(ea)
		if err != nil {
			return err
		}
		qb, err := b.orientation(eb)
		if err != nil {
			return err
		}
		na, nb := qa.N(), qb.N()
		k := b.aux(c, func() float64 { return sign(b.eval(na.Dot(nb))) })
		eqs(na.Minus(nb.ScaledBy(k)).Components())
		eq(qa.U().Dot(qb.V()))

	case model.ConstraintEqualRadius, model.ConstraintDiameter:
		ea, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		ra, err := b.radius(ea)
		if err != nil {
			return err
		}
		if c.Kind == model.ConstraintDiameter {
			eq(ra.ScaledBy(2).Minus(expr.Const(c.Datum)))
			break
		}
		eb, err := b.entityArg(c, 1)
		if err != nil {
			return err
		}
		rb, err := b.radius(eb)
		if err != nil {
			return err
		}
		eq(ra.Minus(rb))

	case model.ConstraintMidpoint:
		l, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		a, z, err := b.lineEnds(f, l)
		if err != nil {
			return err
		}
		eqs(components(f, pts[0].Minus(a.Plus(z).ScaledBy(expr.Const(0.5)))))

	case model.ConstraintSymmetric:
		e, err := b.entityArg(c, 0)
		if err != nil {
			return err
		}
		mid := pts[0].Plus(pts[1]).ScaledBy(expr.Const(0.5))
		span := pts[1].Minus(pts[0])
		if e.Kind == model.EntityWorkplane {
			// Mirror plane: measured in world space.
			wa, err := b.world(b.m.Entity(c.Points[0].Entity), c.Points[0].Point)
			if err != nil {
				return err
			}
			wb, err := b.world(b.m.Entity(c.Points[1].Entity), c.Points[1].Point)
			if err != nil {
				return err
			}
			q := b.quat(e, model.PlaneNormal)
			wmid := wa.Plus(wb).ScaledBy(expr.Const(0.5))
			wspan := wb.Minus(wa)
			eq(wmid.Minus(b.vec3(e, model.PlaneOrigin)).Dot(q.N()))
			eq(wspan.Dot(q.U()))
			eq(wspan.Dot(q.V()))
			break
		}
		if err := needPlane(); err != nil {
			return err
		}
		a, z, err := b.lineEnds(f, e)
		if err != nil {
			return err
		}
		eq(cross2(z.Minus(a), mid.Minus(a)))
		eq(span.Dot(z.Minus(a)))

	case model.ConstraintFixed:
		e := b.m.Entity(c.Points[0].Entity)
		pt := c.Points[0].Point
		for a := 0; a < e.Layout()[pt]; a++ {
			eq(b.param(e, pt, a).Minus(expr.Const(c.At[a])))
		}

	default:
		return b.fail(c.ID, ErrBadReference, "unsupported constraint kind %v", c.Kind)
	}
	return nil
}

// emitParallel makes two directions parallel: one cross-product equation
// in a plane, or da = k·db with an auxiliary ratio k in space.
func (b *builder) emitParallel(f frame, c *model.Constraint, da, db expr.Vec) {
	if f.planar() {
		b.equation(cross2(da, db), c)
		return
	}
	k := b.aux(c, func() float64 {
		dd := b.eval(db.Dot(db))
		if dd == 0 {
			return 1
		}
		return b.eval(da.Dot(db)) / dd
	})
	for _, e := range da.Minus(db.ScaledBy(k)).Components() {
		b.equation(e, c)
	}
}

// pointLineDistance is signed in a plane and unsigned in space.
func (b *builder) pointLineDistance(f frame, p expr.Vec, l *model.Entity) (*expr.Expr, error) {
	a, z, err := b.lineEnds(f, l)
	if err != nil {
		return nil, err
	}
	d := z.Minus(a)
	if f.planar() {
		return cross2(d, p.Minus(a)).Div(d.Magnitude()), nil
	}
	return p.Minus(a).Cross(d).Magnitude().Div(d.Magnitude()), nil
}

// bezier evaluates a cubic in Bernstein form.
func bezier(ctl [4]expr.Vec, t *expr.Expr) expr.Vec {
	s := expr.Const(1).Minus(t)
	three := expr.Const(3)
	w0 := s.Times(s).Times(s)
	w1 := three.Times(s).Times(s).Times(t)
	w2 := three.Times(s).Times(t).Times(t)
	w3 := t.Times(t).Times(t)
	return ctl[0].ScaledBy(w0).Plus(ctl[1].ScaledBy(w1)).Plus(ctl[2].ScaledBy(w2)).Plus(ctl[3].ScaledBy(w3))
}

// nearestOnCubic samples the curve for the parameter closest to p.
func (b *builder) nearestOnCubic(ctl [4]expr.Vec, p expr.Vec) float64 {
	const samples = 32
	best, bestT := math.Inf(1), 0.0
	target := p.Eval(b.sys.Values())
	for i := 0; i <= samples; i++ {
		t := float64(i) / samples
		d := bezier(ctl, expr.Const(t)).Eval(b.sys.Values()).Sub(target).Len()
		if d < best {
			best, bestT = d, t
		}
	}
	return bestT
}
