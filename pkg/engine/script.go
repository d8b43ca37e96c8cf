package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/model"
	"github.com/google/uuid"
)

var errNoSketch = errors.New("no open sketch")

// scriptSpace namespaces the identities of script-defined groups so that
// evaluating the same source twice yields the same IDs.
var scriptSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/chazu/kerf/script"))

// script is the model under construction during one evaluation.
type script struct {
	m      *model.Model
	sketch *model.Group // open sketch, receives entities and constraints
	seq    map[model.ID]int
}

func newScript() *script {
	return &script{m: model.New(), seq: make(map[model.ID]int)}
}

// groupID is a function of the group name alone, so inserting a group
// earlier in the source keeps the IDs of the others.
func groupID(name string) model.ID {
	return model.ID(uuid.NewSHA1(scriptSpace, []byte("group/"+name)))
}

// nextID numbers the items of g in source order.
func (s *script) nextID(g *model.Group) model.ID {
	s.seq[g.ID]++
	return model.DerivedID(g.ID, model.ZeroID, s.seq[g.ID])
}

func (s *script) addGroup(g *model.Group) error {
	if g.Name == "" {
		g.Name = fmt.Sprintf("%s-%d", g.Kind, len(s.m.Groups)+1)
	}
	if s.m.GroupNamed(g.Name) != nil {
		return fmt.Errorf("group %q already defined", g.Name)
	}
	g.ID = groupID(g.Name)
	return s.m.AddGroup(g)
}

// plane describes where a new sketch lives.
type plane struct {
	free   bool     // no workplane: entities are 3D
	on     model.ID // reuse an existing workplane
	origin model.Vec3
	normal model.Vec3
	u      model.Vec3 // optional in-plane x direction
}

// openSketch appends a sketch group and makes it the target of later
// entities and constraints.
func (s *script) openSketch(name string, p plane) (*model.Group, error) {
	g := &model.Group{Kind: model.GroupSketch, Name: name, Workplane: p.on}
	if err := s.addGroup(g); err != nil {
		return nil, err
	}
	s.sketch = g
	if p.free || !p.on.IsZero() {
		if !p.on.IsZero() && s.m.Entity(p.on).Kind != model.EntityWorkplane {
			return nil, fmt.Errorf("entity %s is not a workplane", p.on.Short())
		}
		return g, nil
	}

	n := p.normal
	if n.Len() == 0 {
		n = model.Vec3{Z: 1}
	}
	q := model.QuatFromNormal(n)
	if p.u.Len() > 0 {
		n = n.Unit()
		u := p.u.Unit()
		if math.Abs(u.Dot(n)) > 1e-9 {
			return nil, fmt.Errorf("sketch %q: u direction is not in the plane", g.Name)
		}
		q = model.QuatFromBasis(u, n.Cross(u))
	}
	wp := &model.Entity{ID: s.nextID(g), Kind: model.EntityWorkplane, Group: g.ID}
	wp.SetPoint3(model.PlaneOrigin, p.origin)
	wp.SetQuat(model.PlaneNormal, q)
	if err := s.m.AddEntity(wp); err != nil {
		return nil, err
	}
	g.Workplane = wp.ID
	return g, nil
}

// closeSketch stops routing entities to the open sketch.
func (s *script) closeSketch() {
	s.sketch = nil
}

// planar reports whether the open sketch has a workplane.
func (s *script) planar() bool {
	return s.sketch != nil && !s.sketch.Workplane.IsZero()
}

// entity adds an entity of the 2D or 3D flavor matching the open sketch.
// pts are (u, v) in a workplane, world coordinates otherwise.
func (s *script) entity(kind2D, kind3D model.EntityKind, construction bool, pts []model.Vec3, normal model.Vec3) (*model.Entity, error) {
	if s.sketch == nil {
		return nil, errNoSketch
	}
	e := &model.Entity{
		ID:           s.nextID(s.sketch),
		Kind:         kind3D,
		Group:        s.sketch.ID,
		Construction: construction,
	}
	if s.planar() {
		e.Kind = kind2D
		e.Workplane = s.sketch.Workplane
	}
	for i, p := range pts {
		if e.InWorkplane() {
			e.SetPoint2(i, p.X, p.Y)
		} else {
			e.SetPoint3(i, p)
		}
	}
	if !e.InWorkplane() {
		if normal.Len() == 0 {
			normal = model.Vec3{Z: 1}
		}
		switch e.Kind {
		case model.EntityArc3D:
			e.SetQuat(model.ArcNormal, model.QuatFromNormal(normal))
		case model.EntityCircle3D:
			e.SetQuat(model.CircleNormal, model.QuatFromNormal(normal))
		}
	}
	if err := s.m.AddEntity(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *script) point(p model.Vec3, construction bool) (*model.Entity, error) {
	return s.entity(model.EntityPoint2D, model.EntityPoint3D, construction, []model.Vec3{p}, model.Vec3{})
}

func (s *script) line(a, b model.Vec3, construction bool) (*model.Entity, error) {
	return s.entity(model.EntityLine2D, model.EntityLine3D, construction, []model.Vec3{a, b}, model.Vec3{})
}

// arc runs counterclockwise from from to to about center. The end point is
// pulled onto the circle through from.
func (s *script) arc(center, from, to, normal model.Vec3, construction bool) (*model.Entity, error) {
	r := from.Sub(center).Len()
	if r == 0 {
		return nil, fmt.Errorf("arc: start point coincides with center")
	}
	d := to.Sub(center)
	if d.Len() == 0 {
		return nil, fmt.Errorf("arc: end point coincides with center")
	}
	to = center.Add(d.Scale(r / d.Len()))
	return s.entity(model.EntityArc2D, model.EntityArc3D, construction, []model.Vec3{center, from, to}, normal)
}

func (s *script) circle(center model.Vec3, radius float64, normal model.Vec3, construction bool) (*model.Entity, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("circle: radius must be positive, got %g", radius)
	}
	e, err := s.entity(model.EntityCircle2D, model.EntityCircle3D, construction, []model.Vec3{center}, normal)
	if err != nil {
		return nil, err
	}
	e.Params[model.CircleRadius][0] = radius
	return e, nil
}

func (s *script) cubic(pts []model.Vec3, construction bool) (*model.Entity, error) {
	if len(pts) != 4 {
		return nil, fmt.Errorf("cubic needs 4 control points, got %d", len(pts))
	}
	return s.entity(model.EntityCubic, model.EntityCubic, construction, pts, model.Vec3{})
}

// polygon adds a closed chain of lines through pts, joined end to start
// by coincident constraints.
func (s *script) polygon(pts []model.Vec3, construction bool) ([]*model.Entity, error) {
	if len(pts) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(pts))
	}
	lines := make([]*model.Entity, len(pts))
	for i := range pts {
		l, err := s.line(pts[i], pts[(i+1)%len(pts)], construction)
		if err != nil {
			return nil, err
		}
		lines[i] = l
	}
	for i, l := range lines {
		next := lines[(i+1)%len(lines)]
		_, err := s.constrain(constraintSpec{
			kind: model.ConstraintCoincident,
			points: []model.PointRef{
				{Entity: l.ID, Point: model.PointEnd},
				{Entity: next.ID, Point: model.PointStart},
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

// constraintSpec is a constraint as written in source.
type constraintSpec struct {
	kind        model.ConstraintKind
	points      []model.PointRef
	entities    []model.ID
	values      []float64
	measurement bool
	other       bool
	other2      bool
	label       model.Vec3
}

func (s *script) constrain(spec constraintSpec) (*model.Constraint, error) {
	if s.sketch == nil {
		return nil, errNoSketch
	}
	c := &model.Constraint{
		ID:          s.nextID(s.sketch),
		Kind:        spec.kind,
		Group:       s.sketch.ID,
		Workplane:   s.sketch.Workplane,
		Points:      spec.points,
		Entities:    spec.entities,
		Offset:      spec.label,
		Other:       spec.other,
		Other2:      spec.other2,
		Measurement: spec.measurement,
	}
	switch {
	case spec.kind.HasDatum() && len(spec.values) == 1:
		c.Datum = spec.values[0]
	case spec.kind.HasDatum() && len(spec.values) == 0 && spec.measurement:
	case spec.kind.HasDatum():
		return nil, fmt.Errorf("%s takes one value, got %d", spec.kind, len(spec.values))
	case len(spec.values) > 0:
		return nil, fmt.Errorf("%s takes no value", spec.kind)
	}
	if spec.kind == model.ConstraintDiameter && !spec.measurement && c.Datum <= 0 {
		return nil, fmt.Errorf("diameter must be positive, got %g", c.Datum)
	}
	if spec.kind == model.ConstraintFixed && len(spec.points) == 1 {
		if e := s.m.Entity(spec.points[0].Entity); e != nil && spec.points[0].Point >= 0 {
			c.At = e.Params[spec.points[0].Point]
		}
	}
	if err := s.m.AddConstraint(c); err != nil {
		return nil, err
	}
	return c, nil
}

// feature is a derivation group as written in source.
type feature struct {
	kind    model.GroupKind
	name    string
	source  model.ID
	body    model.ID
	combine model.Combine

	offset model.Vec3
	depth  float64 // extrude along the source workplane normal when offset is zero
	origin model.Vec3
	axis   model.Vec3
	angle  float64 // degrees
	count  int
}

// derive appends a derivation group and closes the open sketch.
func (s *script) derive(f feature) (*model.Group, error) {
	s.closeSketch()
	src := s.m.Group(f.source)
	if src == nil {
		return nil, fmt.Errorf("%s: source group not found", f.kind)
	}
	tr := model.Transform{Offset: f.offset, Origin: f.origin, Axis: f.axis, Count: f.count}
	switch f.kind {
	case model.GroupExtrude:
		if tr.Offset.Len() == 0 {
			if f.depth == 0 {
				return nil, fmt.Errorf("extrude: needs :by or :depth")
			}
			wp := s.m.Entity(src.Workplane)
			if wp == nil {
				return nil, fmt.Errorf("extrude: :depth needs a source with a workplane")
			}
			tr.Offset = wp.Quat(model.PlaneNormal).N().Scale(f.depth)
		}
	case model.GroupRevolve, model.GroupLathe:
		if tr.Axis.Len() == 0 {
			return nil, fmt.Errorf("%s: needs an :axis", f.kind)
		}
		if f.kind == model.GroupRevolve {
			if f.angle == 0 {
				return nil, fmt.Errorf("revolve: needs a non-zero :angle")
			}
			tr.Angle = f.angle * math.Pi / 180
		}
	case model.GroupArray:
		if tr.Count < 1 {
			return nil, fmt.Errorf("array: :count must be at least 1, got %d", tr.Count)
		}
	case model.GroupMirror:
		if tr.Axis.Len() == 0 {
			return nil, fmt.Errorf("mirror: needs a :normal")
		}
	}
	g := &model.Group{
		Kind:      f.kind,
		Name:      f.name,
		Source:    f.source,
		Body:      f.body,
		Combine:   f.combine,
		Transform: tr,
	}
	if err := s.addGroup(g); err != nil {
		return nil, err
	}
	return g, nil
}
