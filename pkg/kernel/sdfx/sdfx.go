// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/model"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// DefaultMeshCells controls marching cubes tessellation resolution.
const DefaultMeshCells = 200

// planeTolerance bounds how far a sweep direction or revolve axis may
// leave the expected plane.
const planeTolerance = 1e-6

// Sweep failures, shared with the other kernels.
var (
	ErrOblique      = kernel.ErrOblique
	ErrAxisOffPlane = kernel.ErrAxisOffPlane
	ErrCrossesAxis  = kernel.ErrCrossesAxis
	ErrDegenerate   = kernel.ErrDegenerate
)

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// Option configures an SdfxKernel.
type Option func(*SdfxKernel)

// MeshCells sets the marching cubes resolution along the longest side.
func MeshCells(n int) Option {
	return func(k *SdfxKernel) {
		if n > 0 {
			k.cells = n
		}
	}
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{cells: DefaultMeshCells}
	for _, o := range opts {
		o(k)
	}
	return k
}

// unwrap extracts the underlying sdf.SDF3 from a kernel.Solid.
func unwrap(s kernel.Solid) sdf.SDF3 {
	return s.(*sdfxSolid).s
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// guard turns sdfx panics into errors.
func guard(op string, build func() (sdf.SDF3, error)) (s kernel.Solid, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("sdfx %s: %v", op, r)
		}
	}()
	s3, err := build()
	if err != nil {
		return nil, fmt.Errorf("sdfx %s: %w", op, err)
	}
	return wrap(s3), nil
}

func vec(v model.Vec3) v3.Vec { return v3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// rotation returns the matrix of an orientation quaternion.
func rotation(q model.Quat) sdf.M44 {
	axis, angle := q.Unit().AxisAngle()
	if angle == 0 || axis.Len() == 0 {
		return sdf.Identity3d()
	}
	return sdf.Rotate3d(vec(axis), angle)
}

// region2D builds the 2D SDF of a set of loops: the union of the outer
// loops minus the union of the holes.
func region2D(loops []kernel.Loop, point func([2]float64) v2.Vec) (sdf.SDF2, error) {
	var outer, holes []sdf.SDF2
	for i, l := range loops {
		if len(l.Points) < 3 {
			return nil, fmt.Errorf("loop %d has %d points", i, len(l.Points))
		}
		vs := make([]v2.Vec, len(l.Points))
		for j, p := range l.Points {
			vs[j] = point(p)
		}
		poly, err := sdf.Polygon2D(vs)
		if err != nil {
			return nil, fmt.Errorf("loop %d: %w", i, err)
		}
		if l.Hole {
			holes = append(holes, poly)
		} else {
			outer = append(outer, poly)
		}
	}
	if len(outer) == 0 {
		return nil, kernel.ErrEmptyRegion
	}
	s := sdf.Union2D(outer...)
	if len(holes) > 0 {
		s = sdf.Difference2D(s, sdf.Union2D(holes...))
	}
	return s, nil
}

// Extrude sweeps r along dir, which must be normal to r's workplane.
func (k *SdfxKernel) Extrude(r kernel.Region, dir model.Vec3) (kernel.Solid, error) {
	return guard("extrude", func() (sdf.SDF3, error) {
		n := r.Orientation.N()
		h := dir.Dot(n)
		if math.Abs(h) < planeTolerance {
			return nil, ErrDegenerate
		}
		if dir.Sub(n.Scale(h)).Len() > planeTolerance*math.Max(1, dir.Len()) {
			return nil, ErrOblique
		}
		s2, err := region2D(r.Loops, func(p [2]float64) v2.Vec { return v2.Vec{X: p[0], Y: p[1]} })
		if err != nil {
			return nil, err
		}
		// Extrude3D is centred on z = 0; shift it to run from 0 to h.
		m := sdf.Translate3d(vec(r.Origin)).
			Mul(rotation(r.Orientation)).
			Mul(sdf.Translate3d(v3.Vec{Z: h / 2}))
		return sdf.Transform3D(sdf.Extrude3D(s2, math.Abs(h)), m), nil
	})
}

// Revolve sweeps r about the axis through origin. The axis must lie in
// r's workplane with the profile on one side of it.
func (k *SdfxKernel) Revolve(r kernel.Region, origin, axis model.Vec3, angle float64) (kernel.Solid, error) {
	return guard("revolve", func() (sdf.SDF3, error) {
		if axis.Len() == 0 {
			return nil, ErrDegenerate
		}
		a := axis.Unit()
		n := r.Orientation.N()
		if math.Abs(a.Dot(n)) > planeTolerance {
			return nil, ErrAxisOffPlane
		}
		radial := n.Cross(a).Unit()

		// put the material on the +x side of the sdfx revolve plane
		var sum float64
		var count int
		for _, l := range r.Loops {
			for _, p := range l.Points {
				sum += r.World(p).Sub(origin).Dot(radial)
				count++
			}
		}
		if sum < 0 {
			radial = radial.Scale(-1)
		}
		for _, l := range r.Loops {
			for _, p := range l.Points {
				if r.World(p).Sub(origin).Dot(radial) < -planeTolerance {
					return nil, ErrCrossesAxis
				}
			}
		}

		s2, err := region2D(r.Loops, func(p [2]float64) v2.Vec {
			w := r.World(p).Sub(origin)
			return v2.Vec{X: w.Dot(radial), Y: w.Dot(a)}
		})
		if err != nil {
			return nil, err
		}

		var s3 sdf.SDF3
		full := angle == 0 || math.Abs(angle) >= 2*math.Pi
		if full {
			s3, err = sdf.Revolve3D(s2)
		} else {
			s3, err = sdf.RevolveTheta3D(s2, math.Abs(angle))
		}
		if err != nil {
			return nil, err
		}

		// sdfx revolves about z starting from +x; map x to radial, z to a
		frame := model.QuatFromBasis(radial, a.Cross(radial))
		m := sdf.Translate3d(vec(origin)).Mul(rotation(frame))
		if !full && angle < 0 {
			m = m.Mul(sdf.RotateZ(angle))
		}
		return sdf.Transform3D(s3, m), nil
	})
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns the difference a - b.
func (k *SdfxKernel) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid by d.
func (k *SdfxKernel) Translate(s kernel.Solid, d model.Vec3) kernel.Solid {
	return wrap(sdf.Transform3D(unwrap(s), sdf.Translate3d(vec(d))))
}

// Rotate turns a solid by angle radians about the axis through origin.
func (k *SdfxKernel) Rotate(s kernel.Solid, origin, axis model.Vec3, angle float64) kernel.Solid {
	if angle == 0 || axis.Len() == 0 {
		return s
	}
	m := sdf.Translate3d(vec(origin)).
		Mul(sdf.Rotate3d(vec(axis.Unit()), angle)).
		Mul(sdf.Translate3d(vec(origin.Scale(-1))))
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Mirror reflects a solid in the plane through origin with the given
// normal.
func (k *SdfxKernel) Mirror(s kernel.Solid, origin, normal model.Vec3) kernel.Solid {
	if normal.Len() == 0 {
		return s
	}
	// carry the plane to z = 0, reflect, carry it back
	r := rotation(model.QuatFromNormal(normal.Unit()))
	m := sdf.Translate3d(vec(origin)).
		Mul(r).
		Mul(sdf.MirrorXY()).
		Mul(r.Inverse()).
		Mul(sdf.Translate3d(vec(origin.Scale(-1))))
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// ToMesh converts a solid to a triangle mesh using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (mesh *kernel.Mesh, err error) {
	defer func() {
		if r := recover(); r != nil {
			mesh, err = nil, fmt.Errorf("sdfx mesh: %v", r)
		}
	}()
	sdf3 := unwrap(s)

	renderer := render.NewMarchingCubesUniform(k.cells)
	triangles := render.ToTriangles(sdf3, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		// Compute face normal.
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}
