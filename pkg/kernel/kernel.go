// Package kernel defines the solid-modeling kernel the regeneration
// pipeline hands planar profiles to. Implementations (sdfx, manifold) provide
// sweeps, booleans and meshing behind this interface, so the backend can
// change without touching the rest of the system.
package kernel

import (
	"errors"

	"github.com/chazu/kerf/pkg/model"
)

var (
	// ErrEmptyRegion is returned when a sweep is given no loops.
	ErrEmptyRegion = errors.New("region has no loops")
	// ErrOblique means an extrusion direction is not normal to the profile.
	ErrOblique = errors.New("extrusion must be normal to the workplane")
	// ErrAxisOffPlane means a revolve axis does not lie in the profile plane.
	ErrAxisOffPlane = errors.New("revolve axis must lie in the workplane")
	// ErrCrossesAxis means a revolve profile has material on both sides of
	// its axis.
	ErrCrossesAxis = errors.New("profile crosses the revolve axis")
	// ErrDegenerate means a sweep has zero length or a zero axis.
	ErrDegenerate = errors.New("degenerate sweep")
)

// Loop is one closed polyline in workplane (u, v) coordinates. The last
// point connects back to the first.
type Loop struct {
	Points [][2]float64 `json:"points"`
	Hole   bool         `json:"hole"` // wound clockwise; removed from the enclosing loop
}

// Region is a set of closed loops in a workplane.
type Region struct {
	Origin      model.Vec3 `json:"origin"`
	Orientation model.Quat `json:"orientation"` // maps workplane u, v, n to world
	Loops       []Loop     `json:"loops"`
}

// World maps a workplane point to world coordinates.
func (r Region) World(p [2]float64) model.Vec3 {
	q := r.Orientation
	return r.Origin.Add(q.U().Scale(p[0])).Add(q.V().Scale(p[1]))
}

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the solid-modeling kernel. Constructors report a readable
// error instead of panicking when the input cannot make a solid.
type Kernel interface {
	// Sweeps
	Extrude(r Region, dir model.Vec3) (Solid, error)
	// Revolve sweeps r by angle radians about the axis through origin.
	// An angle of zero or a full turn or more makes a closed lathe.
	Revolve(r Region, origin, axis model.Vec3, angle float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Rigid transforms
	Translate(s Solid, d model.Vec3) Solid
	Rotate(s Solid, origin, axis model.Vec3, angle float64) Solid
	Mirror(s Solid, origin, normal model.Vec3) Solid

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
