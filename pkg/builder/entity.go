package builder

import (
	"github.com/chazu/kerf/pkg/expr"
	"github.com/chazu/kerf/pkg/model"
)

// emitEntities adds the relations every drawn entity of the target group
// carries on its own. Generated entities get none: their parameters are
// pinned to the source by emitDerivation.
func (b *builder) emitEntities() error {
	for _, e := range b.entities {
		if e.Generated {
			continue
		}
		switch e.Kind {
		case model.EntityArc2D:
			f, err := b.ownFrame(e)
			if err != nil {
				return err
			}
			c, _ := b.pos(f, e, model.ArcCenter)
			from, _ := b.pos(f, e, model.ArcFrom)
			to, _ := b.pos(f, e, model.ArcTo)
			b.equation(sameRadius(c, from, to), nil)

		case model.EntityArc3D:
			c, from, to := b.vec3(e, model.ArcCenter), b.vec3(e, model.ArcFrom), b.vec3(e, model.ArcTo)
			q := b.quat(e, model.ArcNormal)
			n := q.N()
			b.equation(sameRadius(c, from, to), nil)
			b.equation(from.Minus(c).Dot(n), nil)
			b.equation(to.Minus(c).Dot(n), nil)
			b.equation(q.Magnitude2().Minus(expr.Const(1)), nil)

		case model.EntityCircle3D:
			q := b.quat(e, model.CircleNormal)
			b.equation(q.Magnitude2().Minus(expr.Const(1)), nil)

		case model.EntityWorkplane, model.EntityImported:
			if b.solved(e, model.PlaneNormal) {
				q := b.quat(e, model.PlaneNormal)
				b.equation(q.Magnitude2().Minus(expr.Const(1)), nil)
			}

		case model.EntityCubic:
			if e.InWorkplane() {
				if _, err := b.ownFrame(e); err != nil {
					return err
				}
			}

		case model.EntityCluster:
			for _, id := range e.Members {
				if b.m.Entity(id) == nil {
					return b.fail(e.ID, model.ErrDanglingReference, "member %s of cluster", id.Short())
				}
			}
		}
	}
	return nil
}

// sameRadius is |from-c|² - |to-c|².
func sameRadius(c, from, to expr.Vec) *expr.Expr {
	df, dt := from.Minus(c), to.Minus(c)
	return df.Dot(df).Minus(dt.Dot(dt))
}
