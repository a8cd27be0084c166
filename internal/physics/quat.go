package physics

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// IdentityQuat returns the no-rotation quaternion.
func IdentityQuat() quat.Number {
	return quat.Number{Real: 1}
}

// NormalizeQuat returns q scaled to unit length. The zero quaternion maps to
// the identity so that unset orientations behave as "no rotation".
func NormalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return IdentityQuat()
	}
	return quat.Scale(1/n, q)
}

// QuatFromEuler builds a quaternion from fixed-axis roll/pitch/yaw angles in
// radians, the same convention URDF uses for rpy attributes.
func QuatFromEuler(roll, pitch, yaw float64) quat.Number {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)

	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// EulerFromQuat is the inverse of QuatFromEuler. Pitch is clamped to
// [-pi/2, pi/2] at the gimbal singularity.
func EulerFromQuat(q quat.Number) (roll, pitch, yaw float64) {
	q = NormalizeQuat(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	pitch = math.Asin(sinp)

	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// RotateVec rotates v by the unit quaternion q.
func RotateVec(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(NormalizeQuat(q)).Rotate(v)
}
