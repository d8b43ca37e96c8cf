package model

import (
	"fmt"
	"math"
)

// MaxPoints and MaxAxes bound the per-entity parameter table.
const (
	MaxPoints = 4
	MaxAxes   = 4
)

// EntityKind enumerates the geometric primitives.
type EntityKind int

const (
	EntityPoint2D EntityKind = iota
	EntityPoint3D
	EntityLine2D
	EntityLine3D
	EntityArc2D
	EntityArc3D
	EntityCircle2D
	EntityCircle3D
	EntityCubic     // cubic Bezier; 2D when it has a workplane
	EntityWorkplane // origin + orientation
	EntityImported  // placed external geometry block
	EntityCluster   // instance of a set of member entities
	EntityText      // text laid out as geometry
	EntityImage     // image plane
)

func (k EntityKind) String() string {
	switch k {
	case EntityPoint2D:
		return "point-2d"
	case EntityPoint3D:
		return "point-3d"
	case EntityLine2D:
		return "line-2d"
	case EntityLine3D:
		return "line-3d"
	case EntityArc2D:
		return "arc-2d"
	case EntityArc3D:
		return "arc-3d"
	case EntityCircle2D:
		return "circle-2d"
	case EntityCircle3D:
		return "circle-3d"
	case EntityCubic:
		return "cubic"
	case EntityWorkplane:
		return "workplane"
	case EntityImported:
		return "imported"
	case EntityCluster:
		return "cluster"
	case EntityText:
		return "text"
	case EntityImage:
		return "image"
	default:
		return fmt.Sprintf("EntityKind(%d)", int(k))
	}
}

// Control point indices, per kind.
const (
	PointStart = 0 // lines
	PointEnd   = 1

	ArcCenter = 0
	ArcFrom   = 1
	ArcTo     = 2
	ArcNormal = 3 // 3D arcs only

	CircleCenter = 0
	CircleRadius = 1 // single axis: the radius
	CircleNormal = 2 // 3D circles only

	PlaneOrigin = 0
	PlaneNormal = 1

	TextAnchor = 0
	TextHeight = 1
)

// WholeEntity is the Point value of a PointRef naming an entity rather than
// one of its control points.
const WholeEntity = -1

// PointRef names one control point of an entity.
type PointRef struct {
	Entity ID  `json:"entity"`
	Point  int `json:"point"`
}

func (r PointRef) String() string {
	return fmt.Sprintf("%s.%d", r.Entity.Short(), r.Point)
}

// Entity is a geometric primitive. Its numeric state lives in Params,
// addressed by (control point, axis); Layout gives the shape in use.
type Entity struct {
	ID           ID                          `json:"id"`
	Kind         EntityKind                  `json:"kind"`
	Group        ID                          `json:"group"`
	Workplane    ID                          `json:"workplane,omitempty"`
	Construction bool                        `json:"construction,omitempty"`
	Params       [MaxPoints][MaxAxes]float64 `json:"params"`
	Generated    bool                        `json:"generated,omitempty"`
	Source       ID                          `json:"source,omitempty"` // upstream entity when Generated
	Instance     int                         `json:"instance,omitempty"`
	Members      []ID                        `json:"members,omitempty"` // clusters
	Text         string                      `json:"text,omitempty"`
	Asset        string                      `json:"asset,omitempty"` // image or imported file
}

// Requires2D reports whether entities of kind k must live in a workplane.
func (k EntityKind) Requires2D() bool {
	switch k {
	case EntityPoint2D, EntityLine2D, EntityArc2D, EntityCircle2D, EntityText, EntityImage:
		return true
	}
	return false
}

// Layout returns the number of axes used by each control point.
func (e *Entity) Layout() []int {
	pt := 3
	if e.InWorkplane() {
		pt = 2
	}
	switch e.Kind {
	case EntityPoint2D:
		return []int{2}
	case EntityPoint3D:
		return []int{3}
	case EntityLine2D:
		return []int{2, 2}
	case EntityLine3D:
		return []int{3, 3}
	case EntityArc2D:
		return []int{2, 2, 2}
	case EntityArc3D:
		return []int{3, 3, 3, 4}
	case EntityCircle2D:
		return []int{2, 1}
	case EntityCircle3D:
		return []int{3, 1, 4}
	case EntityCubic:
		return []int{pt, pt, pt, pt}
	case EntityWorkplane, EntityImported:
		return []int{3, 4}
	case EntityCluster:
		return []int{pt}
	case EntityText:
		return []int{2, 1}
	case EntityImage:
		return []int{2, 2}
	}
	return nil
}

// IsPosition reports whether control point i is a position (as opposed to
// a radius or an orientation).
func (e *Entity) IsPosition(i int) bool {
	switch e.Kind {
	case EntityArc3D:
		return i != ArcNormal
	case EntityCircle2D, EntityCircle3D:
		return i == CircleCenter
	case EntityWorkplane, EntityImported:
		return i == PlaneOrigin
	case EntityText:
		return i == TextAnchor
	}
	layout := e.Layout()
	return i >= 0 && i < len(layout)
}

// InWorkplane reports whether the entity's coordinates are (u, v) in a
// workplane.
func (e *Entity) InWorkplane() bool {
	return !e.Workplane.IsZero() && e.Kind != EntityWorkplane && e.Kind != EntityImported &&
		e.Kind != EntityPoint3D && e.Kind != EntityLine3D && e.Kind != EntityArc3D && e.Kind != EntityCircle3D
}

// HasRadius reports whether the entity has a center and radius.
func (e *Entity) HasRadius() bool {
	switch e.Kind {
	case EntityArc2D, EntityArc3D, EntityCircle2D, EntityCircle3D:
		return true
	}
	return false
}

// HasTangent reports whether the entity has a tangent direction at its
// end points.
func (e *Entity) HasTangent() bool {
	switch e.Kind {
	case EntityLine2D, EntityLine3D, EntityArc2D, EntityArc3D, EntityCubic:
		return true
	}
	return false
}

// IsCurve reports whether the entity contributes to a planar profile.
func (e *Entity) IsCurve() bool {
	return e.HasTangent() || e.Kind == EntityCircle2D || e.Kind == EntityCircle3D
}

// Movable2D reports whether the user can drag the entity within a workplane.
func (e *Entity) Movable2D() bool {
	return !e.Generated && e.InWorkplane()
}

// Movable3D reports whether the user can drag the entity freely in space.
func (e *Entity) Movable3D() bool {
	return !e.Generated && !e.InWorkplane() && e.Kind != EntityWorkplane
}

// Endpoints returns the control points at the two ends of a curve.
func (e *Entity) Endpoints() (start, end int, ok bool) {
	switch e.Kind {
	case EntityLine2D, EntityLine3D:
		return PointStart, PointEnd, true
	case EntityArc2D, EntityArc3D:
		return ArcFrom, ArcTo, true
	case EntityCubic:
		return 0, 3, true
	}
	return 0, 0, false
}

// Point2 returns the (u, v) coordinates of control point i.
func (e *Entity) Point2(i int) (u, v float64) {
	return e.Params[i][0], e.Params[i][1]
}

// SetPoint2 sets the (u, v) coordinates of control point i.
func (e *Entity) SetPoint2(i int, u, v float64) {
	e.Params[i][0], e.Params[i][1] = u, v
}

// Point3 returns control point i as a 3D vector.
func (e *Entity) Point3(i int) Vec3 {
	return Vec3{e.Params[i][0], e.Params[i][1], e.Params[i][2]}
}

// SetPoint3 sets control point i from a 3D vector.
func (e *Entity) SetPoint3(i int, p Vec3) {
	e.Params[i][0], e.Params[i][1], e.Params[i][2] = p.X, p.Y, p.Z
}

// Quat returns control point i as an orientation.
func (e *Entity) Quat(i int) Quat {
	p := e.Params[i]
	return Quat{p[0], p[1], p[2], p[3]}
}

// SetQuat sets control point i from an orientation.
func (e *Entity) SetQuat(i int, q Quat) {
	e.Params[i] = [MaxAxes]float64{q.W, q.X, q.Y, q.Z}
}

// Radius returns the stored radius of a circle. Arcs derive it from their
// center and start point.
func (e *Entity) Radius() float64 {
	switch e.Kind {
	case EntityCircle2D, EntityCircle3D:
		return e.Params[CircleRadius][0]
	case EntityArc2D:
		cu, cv := e.Point2(ArcCenter)
		fu, fv := e.Point2(ArcFrom)
		return math.Hypot(fu-cu, fv-cv)
	case EntityArc3D:
		return e.Point3(ArcFrom).Sub(e.Point3(ArcCenter)).Len()
	}
	return 0
}

// Bounds2D returns the workplane bounding box of an entity that lives in a
// workplane.
func (e *Entity) Bounds2D() (min, max [2]float64, ok bool) {
	if !e.InWorkplane() {
		return min, max, false
	}
	min = [2]float64{math.Inf(1), math.Inf(1)}
	max = [2]float64{math.Inf(-1), math.Inf(-1)}
	grow := func(u, v float64) {
		min[0], min[1] = math.Min(min[0], u), math.Min(min[1], v)
		max[0], max[1] = math.Max(max[0], u), math.Max(max[1], v)
	}
	switch e.Kind {
	case EntityCircle2D, EntityArc2D:
		cu, cv := e.Point2(0)
		r := e.Radius()
		grow(cu-r, cv-r)
		grow(cu+r, cv+r)
	case EntityText:
		u, v := e.Point2(TextAnchor)
		h := e.Params[TextHeight][0]
		grow(u, v)
		grow(u+h*0.6*float64(len(e.Text)), v+h)
	default:
		for i, axes := range e.Layout() {
			if axes == 2 {
				grow(e.Point2(i))
			}
		}
	}
	return min, max, true
}

// References returns the IDs of other entities this entity depends on.
func (e *Entity) References() []ID {
	var refs []ID
	if !e.Workplane.IsZero() {
		refs = append(refs, e.Workplane)
	}
	if e.Generated && !e.Source.IsZero() {
		refs = append(refs, e.Source)
	}
	return append(refs, e.Members...)
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.Members != nil {
		c.Members = append([]ID(nil), e.Members...)
	}
	return &c
}
