// Package builder turns one group of a model into a numeric system: one
// parameter per (entity, control point, axis) it touches, and the
// equations its entities, constraints and derivation impose.
package builder

import (
	"fmt"
	"sort"

	"github.com/chazu/kerf/pkg/expr"
	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/numeric"
)

// Owner says what a parameter belongs to.
type Owner int

const (
	OwnerEntity Owner = iota
	OwnerGroup
	OwnerConstraint
)

func (o Owner) String() string {
	switch o {
	case OwnerEntity:
		return "entity"
	case OwnerGroup:
		return "group"
	case OwnerConstraint:
		return "constraint"
	default:
		return fmt.Sprintf("Owner(%d)", int(o))
	}
}

// ParamKey addresses one scalar of the model.
type ParamKey struct {
	Owner Owner
	ID    model.ID
	Point int
	Axis  int
}

func (k ParamKey) String() string {
	return fmt.Sprintf("%s:%s.%d.%d", k.Owner, k.ID.Short(), k.Point, k.Axis)
}

// Options adjust a build.
type Options struct {
	Exclude model.ID         // constraint left out, for redundancy probing
	Dragged []model.PointRef // control points soft-pinned during a drag
}

// System is a numeric system plus the mapping back to the model.
type System struct {
	numeric.System
	Group model.ID
	Keys  []ParamKey
	// Tags maps an equation tag to the constraint that emitted it.
	// Intrinsic and derivation equations carry tag -1.
	Tags []model.ID

	index map[ParamKey]int
}

// Lookup returns the parameter index of key.
func (s *System) Lookup(key ParamKey) (int, bool) {
	i, ok := s.index[key]
	return i, ok
}

// Build assembles the system for group. Entities of the group and the
// group's own transform are unknowns; everything they reference from
// earlier groups enters as known values.
func Build(m *model.Model, group model.ID, opts Options) (*System, error) {
	g := m.Group(group)
	if g == nil {
		return nil, &Error{Group: group, Msg: "build", Err: model.ErrNotFound}
	}
	b := newBuilder(m, g)
	if err := b.allocate(opts); err != nil {
		return nil, err
	}
	if err := b.emitEntities(); err != nil {
		return nil, err
	}
	if err := b.emitDerivation(); err != nil {
		return nil, err
	}
	for _, c := range b.constraints {
		if c.ID == opts.Exclude {
			continue
		}
		if err := b.emitConstraint(c); err != nil {
			return nil, err
		}
	}
	return b.sys, nil
}

func newBuilder(m *model.Model, g *model.Group) *builder {
	return &builder{
		m:    m,
		g:    g,
		sys:  &System{Group: g.ID, index: make(map[ParamKey]int)},
		tags: make(map[model.ID]int),
		seen: make(map[model.ID]bool),
	}
}

type builder struct {
	m           *model.Model
	g           *model.Group
	sys         *System
	entities    []*model.Entity // target group entities, stable order
	constraints []*model.Constraint
	tags        map[model.ID]int
	seen        map[model.ID]bool
	order       []*model.Entity // every entity with parameters
}

func (b *builder) fail(obj model.ID, err error, format string, args ...interface{}) error {
	return &Error{Group: b.g.ID, Object: obj, Msg: fmt.Sprintf(format, args...), Err: err}
}

// allocate creates parameters for the target group's entities, every
// entity they or the group's constraints transitively reference, the
// group transform, and constraint auxiliaries.
func (b *builder) allocate(opts Options) error {
	b.entities = b.m.EntitiesIn(b.g.ID)
	for _, c := range b.m.ConstraintsIn(b.g.ID) {
		if !c.Measurement {
			b.constraints = append(b.constraints, c)
		}
	}

	if err := b.include(b.g.ID, b.g.Workplane); err != nil {
		return err
	}
	for _, e := range b.entities {
		if err := b.include(b.g.ID, e.ID); err != nil {
			return err
		}
	}
	for _, c := range b.constraints {
		for _, id := range c.ReferencedEntities() {
			if err := b.include(c.ID, id); err != nil {
				return err
			}
		}
	}
	b.allocEntities(opts.Dragged)

	switch b.g.Kind {
	case model.GroupExtrude, model.GroupArray, model.GroupClone:
		off := b.g.Transform.Offset.Array()
		for a := 0; a < 3; a++ {
			b.add(ParamKey{OwnerGroup, b.g.ID, model.GroupOffsetPoint, a}, numeric.Param{Value: off[a]})
		}
	case model.GroupRevolve:
		b.add(ParamKey{OwnerGroup, b.g.ID, model.GroupAnglePoint, 0}, numeric.Param{Value: b.g.Transform.Angle})
	}
	return nil
}

// include records entity id, and everything it references, for
// allocation.
func (b *builder) include(owner, id model.ID) error {
	if id.IsZero() || b.seen[id] {
		return nil
	}
	e := b.m.Entity(id)
	if e == nil {
		return b.fail(owner, model.ErrDanglingReference, "reference to %s from", id.Short())
	}
	b.seen[id] = true
	b.order = append(b.order, e)
	for _, ref := range e.References() {
		if err := b.include(e.ID, ref); err != nil {
			return err
		}
	}
	return nil
}

// allocEntities creates the parameters of every included entity. Drawn
// entities of the target group are unknown, and so are its workplanes and
// imported blocks, except a workplane the group's own entities or
// constraints are measured in: that one stays put while they are solved.
func (b *builder) allocEntities(drag []model.PointRef) {
	sort.SliceStable(b.order, func(i, j int) bool { return b.order[i].ID.Less(b.order[j].ID) })
	dragged := make(map[model.PointRef]bool, len(drag))
	for _, r := range drag {
		dragged[r] = true
	}
	active := make(map[model.ID]bool)
	for _, e := range b.entities {
		if e.InWorkplane() {
			active[e.Workplane] = true
		}
	}
	for _, c := range b.constraints {
		if !c.Workplane.IsZero() {
			active[c.Workplane] = true
		}
	}
	for _, e := range b.order {
		known := e.Group != b.g.ID || e.Generated || active[e.ID]
		for i, axes := range e.Layout() {
			for a := 0; a < axes; a++ {
				b.add(ParamKey{OwnerEntity, e.ID, i, a}, numeric.Param{
					Value:   e.Params[i][a],
					Known:   known,
					Dragged: !known && dragged[model.PointRef{Entity: e.ID, Point: i}],
				})
			}
		}
	}
}

func (b *builder) add(key ParamKey, p numeric.Param) int {
	if i, ok := b.sys.index[key]; ok {
		return i
	}
	p.Name = key.String()
	i := b.sys.AddParam(p)
	b.sys.Keys = append(b.sys.Keys, key)
	b.sys.index[key] = i
	return i
}

// aux returns the auxiliary unknown of c, creating it with seed() as its
// starting value unless c already carries a solved value.
func (b *builder) aux(c *model.Constraint, seed func() float64) *expr.Expr {
	key := ParamKey{OwnerConstraint, c.ID, 0, 0}
	if i, ok := b.sys.index[key]; ok {
		return expr.Param(i)
	}
	v := c.Aux
	if !c.AuxValid {
		v = seed()
	}
	return expr.Param(b.add(key, numeric.Param{Value: v, Aux: true}))
}

// param returns the expression for one entity scalar.
func (b *builder) param(e *model.Entity, point, axis int) *expr.Expr {
	i, ok := b.sys.index[ParamKey{OwnerEntity, e.ID, point, axis}]
	if !ok {
		panic(fmt.Sprintf("builder: %s point %d axis %d not allocated", e.ID.Short(), point, axis))
	}
	return expr.Param(i)
}

// solved reports whether the given control point of e is an unknown.
func (b *builder) solved(e *model.Entity, point int) bool {
	i, ok := b.sys.index[ParamKey{OwnerEntity, e.ID, point, 0}]
	return ok && !b.sys.Params[i].Known
}

func (b *builder) groupOffset() expr.Vec {
	p := func(a int) *expr.Expr {
		i, ok := b.sys.index[ParamKey{OwnerGroup, b.g.ID, model.GroupOffsetPoint, a}]
		if !ok {
			return expr.Const(b.g.Transform.Offset.Array()[a])
		}
		return expr.Param(i)
	}
	return expr.Vec{X: p(0), Y: p(1), Z: p(2)}
}

func (b *builder) groupAngle() *expr.Expr {
	if i, ok := b.sys.index[ParamKey{OwnerGroup, b.g.ID, model.GroupAnglePoint, 0}]; ok {
		return expr.Param(i)
	}
	return expr.Const(b.g.Transform.Angle)
}

func (b *builder) eval(e *expr.Expr) float64 {
	return e.Eval(b.sys.Values())
}

func (b *builder) equation(e *expr.Expr, c *model.Constraint) {
	tag := -1
	if c != nil {
		var ok bool
		if tag, ok = b.tags[c.ID]; !ok {
			tag = len(b.sys.Tags)
			b.sys.Tags = append(b.sys.Tags, c.ID)
			b.tags[c.ID] = tag
		}
	}
	b.sys.AddEquation(e, tag)
}
