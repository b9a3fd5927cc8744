// Package spatialmath defines rigid body transforms used to relate camera viewpoints.
package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform. By convention a Pose named T_a_b maps points expressed in frame b
// into frame a; the trajectory yields T_world_camera.
type Pose struct {
	m mgl64.Mat4
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{mgl64.Ident4()}
}

// NewPoseFromMat4 wraps a homogeneous 4x4 matrix. The caller is responsible for it being rigid,
// see IsRigid.
func NewPoseFromMat4(m mgl64.Mat4) Pose {
	return Pose{m}
}

// NewPose builds a transform from a rotation matrix and a translation.
func NewPose(rot mgl64.Mat3, pt r3.Vector) Pose {
	m := rot.Mat4()
	m.SetCol(3, mgl64.Vec4{pt.X, pt.Y, pt.Z, 1})
	return Pose{m}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(pt r3.Vector) Pose {
	return Pose{mgl64.Translate3D(pt.X, pt.Y, pt.Z)}
}

// NewPoseFromQuat builds a transform from a (not necessarily normalized) quaternion and a translation.
func NewPoseFromQuat(q quat.Number, pt r3.Vector) Pose {
	n := quat.Abs(q)
	if n == 0 {
		return NewPoseFromPoint(pt)
	}
	q = quat.Scale(1/n, q)
	mq := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}
	return NewPose(mq.Mat4().Mat3(), pt)
}

// Mat4 returns the homogeneous matrix.
func (p Pose) Mat4() mgl64.Mat4 {
	return p.m
}

// Rotation returns the upper-left 3x3 rotation block.
func (p Pose) Rotation() mgl64.Mat3 {
	return p.m.Mat3()
}

// Point returns the translation.
func (p Pose) Point() r3.Vector {
	c := p.m.Col(3)
	return r3.Vector{X: c[0], Y: c[1], Z: c[2]}
}

// Quaternion returns the unit quaternion of the rotation.
func (p Pose) Quaternion() quat.Number {
	q := mgl64.Mat4ToQuat(p.m).Normalize()
	return quat.Number{Real: q.W, Imag: q.V[0], Jmag: q.V[1], Kmag: q.V[2]}
}

// Transform applies the pose to a point.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	out := p.m.Mul4x1(mgl64.Vec4{v.X, v.Y, v.Z, 1})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// Compose returns a*b, i.e. T_x_z = Compose(T_x_y, T_y_z).
func Compose(a, b Pose) Pose {
	return Pose{a.m.Mul4(b.m)}
}

// PoseInverse returns the inverse of a rigid transform using Rᵀ and -Rᵀt.
func PoseInverse(p Pose) Pose {
	rt := p.Rotation().Transpose()
	t := p.m.Col(3).Vec3()
	ti := rt.Mul3x1(t).Mul(-1)
	return NewPose(rt, r3.Vector{X: ti[0], Y: ti[1], Z: ti[2]})
}

// IsRigid reports whether the matrix is a proper rigid transform: orthonormal rotation with
// determinant +1 and a [0 0 0 1] bottom row, each within tol.
func IsRigid(p Pose, tol float64) bool {
	row := p.m.Row(3)
	if math.Abs(row[0]) > tol || math.Abs(row[1]) > tol || math.Abs(row[2]) > tol || math.Abs(row[3]-1) > tol {
		return false
	}
	r := p.Rotation()
	if math.Abs(r.Det()-1) > tol {
		return false
	}
	residual := r.Transpose().Mul3(r).Sub(mgl64.Ident3())
	return withinAbs(residual[:], tol)
}

// PoseAlmostEqual reports whether every matrix entry of a and b differs by at most tol.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	diff := a.m.Sub(b.m)
	return withinAbs(diff[:], tol)
}

// withinAbs reports whether every value is within tol of zero. NaN never is.
func withinAbs(vals []float64, tol float64) bool {
	for _, v := range vals {
		if !(math.Abs(v) <= tol) {
			return false
		}
	}
	return true
}

// Interpolate returns the pose a fraction by of the way from a to b: linear in translation and
// spherical-linear in rotation along the shortest arc.
func Interpolate(a, b Pose, by float64) Pose {
	qa, qb := a.Quaternion(), b.Quaternion()
	if dot(qa, qb) < 0 {
		qb = quat.Scale(-1, qb)
	}
	delta := quat.Mul(quat.Conj(qa), qb)
	q := quat.Mul(qa, quat.PowReal(delta, by))

	pa, pb := a.Point(), b.Point()
	return NewPoseFromQuat(q, pa.Add(pb.Sub(pa).Mul(by)))
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}
