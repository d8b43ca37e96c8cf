package manifold

import (
	"math"

	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/model"
)

// planeTolerance bounds how far a sweep direction or revolve axis may
// leave the expected plane.
const planeTolerance = 1e-6

// affine is a column-major 3x4 transform: three basis columns and a
// translation, the layout manifold_transform takes.
type affine [4]model.Vec3

var identity = affine{{X: 1}, {Y: 1}, {Z: 1}, {}}

func (a affine) apply(p model.Vec3) model.Vec3 {
	return a[0].Scale(p.X).Add(a[1].Scale(p.Y)).Add(a[2].Scale(p.Z)).Add(a[3])
}

// planeFrame maps workplane (u, v, n) coordinates to world.
func planeFrame(r kernel.Region) affine {
	q := r.Orientation.Unit()
	return affine{q.U(), q.V(), q.N(), r.Origin}
}

// rotationAbout turns by angle radians about the axis through origin.
func rotationAbout(origin, axis model.Vec3, angle float64) affine {
	if angle == 0 || axis.Len() == 0 {
		return identity
	}
	q := model.QuatFromAxisAngle(axis.Unit(), angle)
	return affine{
		q.Rotate(model.Vec3{X: 1}),
		q.Rotate(model.Vec3{Y: 1}),
		q.Rotate(model.Vec3{Z: 1}),
		origin.Sub(q.Rotate(origin)),
	}
}

// reflection mirrors in the plane through origin with the given normal.
func reflection(origin, normal model.Vec3) affine {
	if normal.Len() == 0 {
		return identity
	}
	n := normal.Unit()
	col := func(e model.Vec3, c float64) model.Vec3 { return e.Sub(n.Scale(2 * c)) }
	return affine{
		col(model.Vec3{X: 1}, n.X),
		col(model.Vec3{Y: 1}, n.Y),
		col(model.Vec3{Z: 1}, n.Z),
		n.Scale(2 * origin.Dot(n)),
	}
}

// loops copies the region's polylines, rejecting empty input.
func loops(r kernel.Region) ([][][2]float64, error) {
	var out [][][2]float64
	for _, l := range r.Loops {
		if len(l.Points) < 3 {
			continue
		}
		out = append(out, append([][2]float64(nil), l.Points...))
	}
	if len(out) == 0 {
		return nil, kernel.ErrEmptyRegion
	}
	return out, nil
}

// extrusion returns the signed sweep length along the workplane normal
// and the frame that places a +z extrusion of that length.
func extrusion(r kernel.Region, dir model.Vec3) (float64, affine, error) {
	f := planeFrame(r)
	n := f[2]
	h := dir.Dot(n)
	if math.Abs(h) < planeTolerance {
		return 0, affine{}, kernel.ErrDegenerate
	}
	if dir.Sub(n.Scale(h)).Len() > planeTolerance*math.Max(1, dir.Len()) {
		return 0, affine{}, kernel.ErrOblique
	}
	if h < 0 {
		f[3] = f[3].Add(n.Scale(h))
	}
	return h, f, nil
}

// revolution maps a region into the revolve plane (x radial, y along the
// axis) and returns the frame that carries the revolved solid back to
// world. The loops keep their winding.
func revolution(r kernel.Region, origin, axis model.Vec3, angle float64) ([][][2]float64, affine, error) {
	if axis.Len() == 0 {
		return nil, affine{}, kernel.ErrDegenerate
	}
	src, err := loops(r)
	if err != nil {
		return nil, affine{}, err
	}
	a := axis.Unit()
	n := r.Orientation.Unit().N()
	if math.Abs(a.Dot(n)) > planeTolerance {
		return nil, affine{}, kernel.ErrAxisOffPlane
	}
	radial := n.Cross(a).Unit()

	var sum float64
	for _, l := range src {
		for _, p := range l {
			sum += r.World(p).Sub(origin).Dot(radial)
		}
	}
	if sum < 0 {
		radial = radial.Scale(-1)
	}

	out := make([][][2]float64, len(src))
	for i, l := range src {
		out[i] = make([][2]float64, len(l))
		for j, p := range l {
			w := r.World(p).Sub(origin)
			x := w.Dot(radial)
			if x < -planeTolerance {
				return nil, affine{}, kernel.ErrCrossesAxis
			}
			out[i][j] = [2]float64{x, w.Dot(a)}
		}
	}

	// a mirror-image mapping flips every loop's winding
	q := r.Orientation.Unit()
	if q.U().Cross(q.V()).Dot(radial.Cross(a)) < 0 {
		for _, l := range out {
			for i, j := 0, len(l)-1; i < j; i, j = i+1, j-1 {
				l[i], l[j] = l[j], l[i]
			}
		}
	}

	// Manifold revolves about its y axis and stands the result on z,
	// starting from +x.
	side := a.Cross(radial)
	f := affine{radial, side, a, origin}
	if angle < 0 && angle > -2*math.Pi {
		c, s := math.Cos(angle), math.Sin(angle)
		f[0], f[1] = radial.Scale(c).Add(side.Scale(s)), radial.Scale(-s).Add(side.Scale(c))
	}
	return out, f, nil
}

// sweepDegrees converts a revolve angle to Manifold's degrees; zero and
// full turns make a closed lathe.
func sweepDegrees(angle float64) float64 {
	if angle == 0 || math.Abs(angle) >= 2*math.Pi {
		return 360
	}
	return math.Abs(angle) * 180 / math.Pi
}

// vertexNormals generates per-vertex normals by averaging the face normals
// of all triangles incident on each vertex. Used when a mesh comes back
// without normals.
func vertexNormals(vertices []float32, indices []uint32) []float32 {
	normals := make([]float32, len(vertices))
	at := func(i uint32) model.Vec3 {
		return model.Vec3{X: float64(vertices[i*3]), Y: float64(vertices[i*3+1]), Z: float64(vertices[i*3+2])}
	}
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		a := at(i0)
		face := at(i1).Sub(a).Cross(at(i2).Sub(a))
		for _, idx := range []uint32{i0, i1, i2} {
			normals[idx*3+0] += float32(face.X)
			normals[idx*3+1] += float32(face.Y)
			normals[idx*3+2] += float32(face.Z)
		}
	}
	for i := 0; i+2 < len(normals); i += 3 {
		n := model.Vec3{X: float64(normals[i]), Y: float64(normals[i+1]), Z: float64(normals[i+2])}
		if l := n.Len(); l > 1e-12 {
			normals[i], normals[i+1], normals[i+2] = float32(n.X/l), float32(n.Y/l), float32(n.Z/l)
		}
	}
	return normals
}
