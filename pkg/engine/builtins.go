package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/kerf/pkg/model"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpGroup refers to a timeline group.
type sexpGroup struct {
	id   model.ID
	name string
}

func (g *sexpGroup) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(group %q)", g.name)
}
func (g *sexpGroup) Type() *zygo.RegisteredType { return nil }

// sexpEntity refers to an entity of the model.
type sexpEntity struct {
	id   model.ID
	kind model.EntityKind
}

func (e *sexpEntity) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %s)", e.kind, e.id.Short())
}
func (e *sexpEntity) Type() *zygo.RegisteredType { return nil }

// sexpPoint names one control point of an entity.
type sexpPoint struct {
	ref model.PointRef
}

func (p *sexpPoint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(control %s)", p.ref)
}
func (p *sexpPoint) Type() *zygo.RegisteredType { return nil }

// sexpConstraint refers to a constraint of the model.
type sexpConstraint struct {
	id   model.ID
	kind model.ConstraintKind
}

func (c *sexpConstraint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %s)", c.kind, c.id.Short())
}
func (c *sexpConstraint) Type() *zygo.RegisteredType { return nil }

// sexpVec wraps a 2D or 3D coordinate.
type sexpVec struct {
	vec  model.Vec3
	dims int
}

func (v *sexpVec) SexpString(ps *zygo.PrintState) string {
	if v.dims == 2 {
		return fmt.Sprintf("(vec2 %g %g)", v.vec.X, v.vec.Y)
	}
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec) Type() *zygo.RegisteredType { return nil }

func entityRef(e *model.Entity) *sexpEntity {
	return &sexpEntity{id: e.ID, kind: e.Kind}
}

// ---------------------------------------------------------------------------
// Model value extraction
// ---------------------------------------------------------------------------

// toVec3 extracts a coordinate from a sexpVec.
func toVec3(s zygo.Sexp) (model.Vec3, error) {
	if v, ok := s.(*sexpVec); ok {
		return v.vec, nil
	}
	return model.Vec3{}, fmt.Errorf("expected vec2 or vec3, got %T (%s)", s, s.SexpString(nil))
}

// toEntity extracts an entity reference.
func toEntity(s zygo.Sexp) (*sexpEntity, error) {
	if e, ok := s.(*sexpEntity); ok {
		return e, nil
	}
	return nil, fmt.Errorf("expected entity, got %T (%s)", s, s.SexpString(nil))
}

// toPointRef accepts a control point or a point entity.
func toPointRef(s zygo.Sexp) (model.PointRef, bool) {
	switch v := s.(type) {
	case *sexpPoint:
		return v.ref, true
	case *sexpEntity:
		if v.kind == model.EntityPoint2D || v.kind == model.EntityPoint3D {
			return model.PointRef{Entity: v.id}, true
		}
	}
	return model.PointRef{}, false
}

// toGroup accepts a group reference or a group name.
func (s *script) toGroup(v zygo.Sexp) (model.ID, error) {
	switch g := v.(type) {
	case *sexpGroup:
		return g.id, nil
	case *zygo.SexpStr:
		name, _ := toKeywordString(g)
		if found := s.m.GroupNamed(name); found != nil {
			return found.ID, nil
		}
		return model.ZeroID, fmt.Errorf("no group named %q", name)
	}
	return model.ZeroID, fmt.Errorf("expected group, got %T (%s)", v, v.SexpString(nil))
}

// coords reads count points from args. Each point is either a vec or a run
// of bare numbers, dims of them per point.
func coords(args []zygo.Sexp, count, dims int) ([]model.Vec3, error) {
	var pts []model.Vec3
	var pending []float64
	flush := func() {
		p := model.Vec3{X: pending[0], Y: pending[1]}
		if dims == 3 {
			p.Z = pending[2]
		}
		pts = append(pts, p)
		pending = pending[:0]
	}
	for _, a := range args {
		if items, err := sexpListToSlice(a); err == nil && items != nil {
			nested, err := coords(items, -1, dims)
			if err != nil {
				return nil, err
			}
			pts = append(pts, nested...)
			continue
		}
		if v, ok := a.(*sexpVec); ok {
			if len(pending) > 0 {
				return nil, fmt.Errorf("incomplete coordinate before %s", v.SexpString(nil))
			}
			if dims == 2 && v.dims == 3 {
				return nil, fmt.Errorf("expected a 2D coordinate in a workplane, got %s", v.SexpString(nil))
			}
			pts = append(pts, v.vec)
			continue
		}
		f, err := toFloat64(a)
		if err != nil {
			return nil, err
		}
		pending = append(pending, f)
		if len(pending) == dims {
			flush()
		}
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("incomplete coordinate: %d trailing number(s)", len(pending))
	}
	if count >= 0 && len(pts) != count {
		return nil, fmt.Errorf("expected %d point(s), got %d", count, len(pts))
	}
	return pts, nil
}

func (s *script) dims() int {
	if s.planar() {
		return 2
	}
	return 3
}

// vecArg reads an optional vec keyword.
func vecArg(pa kwArgs, name string) (model.Vec3, error) {
	v, ok := pa.kw[name]
	if !ok {
		return model.Vec3{}, nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return model.Vec3{}, fmt.Errorf("%s: %w", name, err)
	}
	return vec, nil
}

// numArg reads an optional numeric keyword.
func numArg(pa kwArgs, name string) (float64, error) {
	v, ok := pa.kw[name]
	if !ok {
		return 0, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// constraintKeywords are accepted by every constraint builtin.
var constraintKeywords = []string{"measure", "other", "other2", "label"}

// featureKeywords are accepted by every derivation builtin.
var featureKeywords = []string{"name", "body", "difference"}

// registerBuiltins installs all kerf DSL builtins into a zygomys environment.
// The builtins operate on the provided script, populating its model during
// evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *script) {

	// -----------------------------------------------------------------------
	// (vec2 1 2), (vec3 1 2 3)
	// -----------------------------------------------------------------------
	for _, dims := range []int{2, 3} {
		dims := dims
		fn := fmt.Sprintf("vec%d", dims)
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != dims {
				return zygo.SexpNull, fmt.Errorf("%s requires exactly %d arguments, got %d", fn, dims, len(args))
			}
			var xyz [3]float64
			for i, a := range args {
				f, err := toFloat64(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: %c: %w", fn, "xyz"[i], err)
				}
				xyz[i] = f
			}
			return &sexpVec{vec: model.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, dims: dims}, nil
		})
	}

	// -----------------------------------------------------------------------
	// (sketch "name" :origin (vec3 0 0 0) :normal (vec3 0 0 1) :u (vec3 1 0 0))
	// (sketch "name" :on (workplane-of (group "base")))
	// (sketch "name" :free)
	// -----------------------------------------------------------------------
	env.AddFunction("sketch", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if k := pa.unknown("origin", "normal", "u", "on", "free"); k != "" {
			return zygo.SexpNull, fmt.Errorf("sketch: unknown keyword :%s", k)
		}
		var groupName string
		if len(pa.positional) > 0 {
			n, err := toString(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sketch: name: %w", err)
			}
			groupName = n
		}
		var p plane
		var err error
		p.free = pa.flag("free")
		if p.origin, err = vecArg(pa, "origin"); err != nil {
			return zygo.SexpNull, fmt.Errorf("sketch: %w", err)
		}
		if p.normal, err = vecArg(pa, "normal"); err != nil {
			return zygo.SexpNull, fmt.Errorf("sketch: %w", err)
		}
		if p.u, err = vecArg(pa, "u"); err != nil {
			return zygo.SexpNull, fmt.Errorf("sketch: %w", err)
		}
		if v, ok := pa.kw["on"]; ok {
			wp, err := toEntity(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sketch: on: %w", err)
			}
			p.on = wp.id
		}
		g, err := s.openSketch(groupName, p)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sketch: %w", err)
		}
		return &sexpGroup{id: g.ID, name: g.Name}, nil
	})

	// -----------------------------------------------------------------------
	// (group "name")
	// -----------------------------------------------------------------------
	env.AddFunction("group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("group requires a name argument")
		}
		id, err := s.toGroup(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("group: %w", err)
		}
		g := s.m.Group(id)
		return &sexpGroup{id: g.ID, name: g.Name}, nil
	})

	// -----------------------------------------------------------------------
	// (workplane-of (group "base"))
	// -----------------------------------------------------------------------
	env.AddFunction("workplane_of", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("workplane-of requires a group argument")
		}
		id, err := s.toGroup(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("workplane-of: %w", err)
		}
		g := s.m.Group(id)
		if g.Workplane.IsZero() {
			return zygo.SexpNull, fmt.Errorf("workplane-of: group %q has no workplane", g.Name)
		}
		return entityRef(s.m.Entity(g.Workplane)), nil
	})

	// -----------------------------------------------------------------------
	// (point 1 2), (line 0 0 10 0), (cubic p0 p1 p2 p3), (polygon ...)
	// -----------------------------------------------------------------------
	env.AddFunction("point", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		pts, err := coords(pa.positional, 1, s.dims())
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: %w", err)
		}
		e, err := s.point(pts[0], pa.flag("construction"))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: %w", err)
		}
		return entityRef(e), nil
	})

	env.AddFunction("line", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		pts, err := coords(pa.positional, 2, s.dims())
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("line: %w", err)
		}
		e, err := s.line(pts[0], pts[1], pa.flag("construction"))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("line: %w", err)
		}
		return entityRef(e), nil
	})

	env.AddFunction("cubic", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		pts, err := coords(pa.positional, 4, s.dims())
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cubic: %w", err)
		}
		e, err := s.cubic(pts, pa.flag("construction"))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cubic: %w", err)
		}
		return entityRef(e), nil
	})

	env.AddFunction("polygon", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		pts, err := coords(pa.positional, -1, s.dims())
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("polygon: %w", err)
		}
		lines, err := s.polygon(pts, pa.flag("construction"))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("polygon: %w", err)
		}
		out := make([]zygo.Sexp, len(lines))
		for i, l := range lines {
			out[i] = entityRef(l)
		}
		return zygo.MakeList(out), nil
	})

	// -----------------------------------------------------------------------
	// (nth sides 0)
	// -----------------------------------------------------------------------
	env.AddFunction("nth", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("nth requires a list and an index")
		}
		items, err := sexpListToSlice(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("nth: %w", err)
		}
		i, err := toInt(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("nth: index: %w", err)
		}
		if i < 0 || i >= len(items) {
			return zygo.SexpNull, fmt.Errorf("nth: index %d out of range [0, %d)", i, len(items))
		}
		return items[i], nil
	})

	// -----------------------------------------------------------------------
	// (arc :center (vec2 0 0) :from (vec2 5 0) :to (vec2 0 5))
	// (arc (vec2 0 0) (vec2 5 0) (vec2 0 5))
	// -----------------------------------------------------------------------
	env.AddFunction("arc", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var pts []model.Vec3
		var err error
		if len(pa.positional) > 0 {
			pts, err = coords(pa.positional, 3, s.dims())
		} else {
			var named []zygo.Sexp
			for _, k := range []string{"center", "from", "to"} {
				v, ok := pa.kw[k]
				if !ok {
					return zygo.SexpNull, fmt.Errorf("arc: missing :%s", k)
				}
				named = append(named, v)
			}
			pts, err = coords(named, 3, s.dims())
		}
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("arc: %w", err)
		}
		normal, err := vecArg(pa, "normal")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("arc: %w", err)
		}
		e, err := s.arc(pts[0], pts[1], pts[2], normal, pa.flag("construction"))
		if err != nil {
			return zygo.SexpNull, err
		}
		return entityRef(e), nil
	})

	// -----------------------------------------------------------------------
	// (circle (vec2 0 0) 5), (circle :center (vec2 0 0) :radius 5)
	// -----------------------------------------------------------------------
	env.AddFunction("circle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		centerArgs := pa.positional
		var radius zygo.Sexp
		if v, ok := pa.kw["center"]; ok {
			centerArgs = []zygo.Sexp{v}
		} else if len(centerArgs) > 0 {
			radius = centerArgs[len(centerArgs)-1]
			centerArgs = centerArgs[:len(centerArgs)-1]
		}
		if v, ok := pa.kw["radius"]; ok {
			radius = v
		}
		if radius == nil {
			return zygo.SexpNull, fmt.Errorf("circle: missing radius")
		}
		r, err := toFloat64(radius)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: radius: %w", err)
		}
		pts, err := coords(centerArgs, 1, s.dims())
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: center: %w", err)
		}
		normal, err := vecArg(pa, "normal")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: %w", err)
		}
		e, err := s.circle(pts[0], r, normal, pa.flag("construction"))
		if err != nil {
			return zygo.SexpNull, err
		}
		return entityRef(e), nil
	})

	// -----------------------------------------------------------------------
	// (start-of l), (end-of l), (center-of c), (control e 2)
	// -----------------------------------------------------------------------
	accessor := func(fn string, pick func(e *model.Entity) (int, bool)) {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			label := strings.ReplaceAll(fn, "_", "-")
			if len(args) < 1 {
				return zygo.SexpNull, fmt.Errorf("%s requires an entity argument", label)
			}
			ref, err := toEntity(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			e := s.m.Entity(ref.id)
			pt, ok := pick(e)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("%s: %s has no such point", label, e.Kind)
			}
			if len(args) > 1 {
				i, err := toInt(args[1])
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: index: %w", label, err)
				}
				if i < 0 || i >= len(e.Layout()) {
					return zygo.SexpNull, fmt.Errorf("%s: %s has no control point %d", label, e.Kind, i)
				}
				pt = i
			}
			return &sexpPoint{ref: model.PointRef{Entity: e.ID, Point: pt}}, nil
		})
	}
	accessor("start_of", func(e *model.Entity) (int, bool) {
		start, _, ok := e.Endpoints()
		return start, ok
	})
	accessor("end_of", func(e *model.Entity) (int, bool) {
		_, end, ok := e.Endpoints()
		return end, ok
	})
	accessor("center_of", func(e *model.Entity) (int, bool) {
		return model.ArcCenter, e.HasRadius()
	})
	accessor("control", func(e *model.Entity) (int, bool) {
		return 0, true
	})

	// -----------------------------------------------------------------------
	// Constraints, one builtin per kind:
	// (coincident (end-of a) (start-of b)), (distance p q 10),
	// (horizontal l), (angle a b 90 :other), (distance p q :measure) ...
	// -----------------------------------------------------------------------
	for kind := model.ConstraintCoincident; kind <= model.ConstraintFixed; kind++ {
		kind := kind
		label := kind.String()
		env.AddFunction(strings.ReplaceAll(label, "-", "_"), func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			if k := pa.unknown(constraintKeywords...); k != "" {
				return zygo.SexpNull, fmt.Errorf("%s: unknown keyword :%s", label, k)
			}
			spec := constraintSpec{
				kind:        kind,
				measurement: pa.flag("measure"),
				other:       pa.flag("other"),
				other2:      pa.flag("other2"),
			}
			var err error
			if spec.label, err = vecArg(pa, "label"); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			for i, a := range pa.positional {
				if ref, ok := toPointRef(a); ok {
					spec.points = append(spec.points, ref)
					continue
				}
				if e, ok := a.(*sexpEntity); ok {
					spec.entities = append(spec.entities, e.id)
					continue
				}
				f, err := toFloat64(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: argument %d: expected point, entity or number, got %s",
						label, i+1, a.SexpString(nil))
				}
				spec.values = append(spec.values, f)
			}
			c, err := s.constrain(spec)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			return &sexpConstraint{id: c.ID, kind: c.Kind}, nil
		})
	}

	// -----------------------------------------------------------------------
	// Derivation groups:
	// (extrude base :depth 5), (extrude base :by (vec3 0 0 5) :difference)
	// (revolve base :axis (vec3 0 1 0) :angle 90), (lathe base :axis (vec3 0 1 0))
	// (linear-array base :step (vec3 12 0 0) :count 3)
	// (mirror base :normal (vec3 1 0 0)), (clone base :offset (vec3 0 0 10))
	// -----------------------------------------------------------------------
	derivation := func(fn string, kind model.GroupKind, extra ...string) {
		label := strings.ReplaceAll(fn, "_", "-")
		allowed := append(append([]string{}, featureKeywords...), extra...)
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			if k := pa.unknown(allowed...); k != "" {
				return zygo.SexpNull, fmt.Errorf("%s: unknown keyword :%s", label, k)
			}
			if len(pa.positional) != 1 {
				return zygo.SexpNull, fmt.Errorf("%s requires a source group", label)
			}
			f := feature{kind: kind}
			var err error
			if f.source, err = s.toGroup(pa.positional[0]); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: source: %w", label, err)
			}
			if v, ok := pa.kw["name"]; ok {
				if f.name, err = toString(v); err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: name: %w", label, err)
				}
			}
			if v, ok := pa.kw["body"]; ok {
				if f.body, err = s.toGroup(v); err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: body: %w", label, err)
				}
			}
			if pa.flag("difference") {
				f.combine = model.CombineDifference
			}
			for _, k := range []string{"by", "step", "offset"} {
				if _, ok := pa.kw[k]; ok {
					if f.offset, err = vecArg(pa, k); err != nil {
						return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
					}
				}
			}
			if f.origin, err = vecArg(pa, "origin"); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			for _, k := range []string{"axis", "normal"} {
				if _, ok := pa.kw[k]; ok {
					if f.axis, err = vecArg(pa, k); err != nil {
						return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
					}
				}
			}
			if f.depth, err = numArg(pa, "depth"); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			if f.angle, err = numArg(pa, "angle"); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			if v, ok := pa.kw["count"]; ok {
				if f.count, err = toInt(v); err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: count: %w", label, err)
				}
			}
			g, err := s.derive(f)
			if err != nil {
				return zygo.SexpNull, err
			}
			return &sexpGroup{id: g.ID, name: g.Name}, nil
		})
	}
	derivation("extrude", model.GroupExtrude, "by", "depth")
	derivation("revolve", model.GroupRevolve, "origin", "axis", "angle")
	derivation("lathe", model.GroupLathe, "origin", "axis")
	derivation("linear_array", model.GroupArray, "step", "count")
	derivation("mirror", model.GroupMirror, "origin", "normal")
	derivation("clone", model.GroupClone, "offset")
}
