package model

import "math"

// Vec3 represents a 3D vector or point.
type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) Add(b Vec3) Vec3         { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3         { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3    { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64      { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Len() float64            { return math.Sqrt(a.Dot(a)) }
func (a Vec3) Array() [3]float64       { return [3]float64{a.X, a.Y, a.Z} }
func (a Vec3) Equal(b Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Unit returns a scaled to length 1, or the zero vector if a is zero.
func (a Vec3) Unit() Vec3 {
	l := a.Len()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// Perpendicular returns some unit vector perpendicular to a.
func (a Vec3) Perpendicular() Vec3 {
	ax, ay, az := math.Abs(a.X), math.Abs(a.Y), math.Abs(a.Z)
	var other Vec3
	switch {
	case ax <= ay && ax <= az:
		other = Vec3{X: 1}
	case ay <= az:
		other = Vec3{Y: 1}
	default:
		other = Vec3{Z: 1}
	}
	return a.Cross(other).Unit()
}

// Quat is a rotation quaternion (W + Xi + Yj + Zk). Workplanes and 3D
// curves store their orientation as one; the rotated basis vectors are U,
// V and N.
type Quat struct {
	W, X, Y, Z float64
}

// IdentityQuat maps the workplane basis onto the world XY plane.
var IdentityQuat = Quat{W: 1}

// QuatFromAxisAngle returns the rotation by angle radians about axis.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	a := axis.Unit()
	s := math.Sin(angle / 2)
	return Quat{W: math.Cos(angle / 2), X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

// QuatFromBasis returns the rotation whose U and V vectors are u and v.
// u and v must be orthonormal.
func QuatFromBasis(u, v Vec3) Quat {
	n := u.Cross(v)
	// Rotation matrix columns are u, v, n.
	m00, m01, m02 := u.X, v.X, n.X
	m10, m11, m12 := u.Y, v.Y, n.Y
	m20, m21, m22 := u.Z, v.Z, n.Z
	tr := m00 + m11 + m22
	var q Quat
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = Quat{W: s / 4, X: (m21 - m12) / s, Y: (m02 - m20) / s, Z: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = Quat{W: (m21 - m12) / s, X: s / 4, Y: (m01 + m10) / s, Z: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = Quat{W: (m02 - m20) / s, X: (m01 + m10) / s, Y: s / 4, Z: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = Quat{W: (m10 - m01) / s, X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: s / 4}
	}
	return q.Unit()
}

// QuatFromNormal returns a rotation whose N vector is n. The in-plane
// basis is chosen deterministically.
func QuatFromNormal(n Vec3) Quat {
	n = n.Unit()
	if n.Equal(Vec3{Z: 1}, 1e-12) {
		return IdentityQuat
	}
	if n.Equal(Vec3{Z: -1}, 1e-12) {
		return Quat{X: 1}
	}
	u := Vec3{Z: 1}.Cross(n).Unit()
	if u.Len() == 0 {
		u = n.Perpendicular()
	}
	v := n.Cross(u)
	return QuatFromBasis(u, v)
}

func (q Quat) Mul(b Quat) Quat {
	return Quat{
		W: q.W*b.W - q.X*b.X - q.Y*b.Y - q.Z*b.Z,
		X: q.W*b.X + q.X*b.W + q.Y*b.Z - q.Z*b.Y,
		Y: q.W*b.Y - q.X*b.Z + q.Y*b.W + q.Z*b.X,
		Z: q.W*b.Z + q.X*b.Y - q.Y*b.X + q.Z*b.W,
	}
}

func (q Quat) Len() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

func (q Quat) Unit() Quat {
	l := q.Len()
	if l == 0 {
		return IdentityQuat
	}
	return Quat{q.W / l, q.X / l, q.Y / l, q.Z / l}
}

func (q Quat) U() Vec3 {
	return Vec3{
		q.W*q.W + q.X*q.X - q.Y*q.Y - q.Z*q.Z,
		2 * (q.X*q.Y + q.W*q.Z),
		2 * (q.X*q.Z - q.W*q.Y),
	}
}

func (q Quat) V() Vec3 {
	return Vec3{
		2 * (q.X*q.Y - q.W*q.Z),
		q.W*q.W - q.X*q.X + q.Y*q.Y - q.Z*q.Z,
		2 * (q.Y*q.Z + q.W*q.X),
	}
}

func (q Quat) N() Vec3 {
	return Vec3{
		2 * (q.X*q.Z + q.W*q.Y),
		2 * (q.Y*q.Z - q.W*q.X),
		q.W*q.W - q.X*q.X - q.Y*q.Y + q.Z*q.Z,
	}
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	return q.U().Scale(v.X).Add(q.V().Scale(v.Y)).Add(q.N().Scale(v.Z))
}

// AxisAngle decomposes q into a unit rotation axis and an angle in radians.
// The identity rotation yields the Z axis and angle 0.
func (q Quat) AxisAngle() (Vec3, float64) {
	q = q.Unit()
	if q.W < 0 {
		q = Quat{-q.W, -q.X, -q.Y, -q.Z}
	}
	s := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if s < 1e-12 {
		return Vec3{Z: 1}, 0
	}
	return Vec3{q.X / s, q.Y / s, q.Z / s}, 2 * math.Atan2(s, q.W)
}
