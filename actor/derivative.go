package actor

import "github.com/go-gl/mathgl/mgl64"

// Measure selects the predicted quantity a derivative is taken of
type Measure int

const (
	// MeasurePosition is the predicted world position of a local point
	MeasurePosition Measure = iota
	// MeasureVelocity is the predicted world velocity of a local point
	MeasureVelocity
	// MeasureDirection is the predicted world direction of a local unit vector
	MeasureDirection
)

// Excitation selects the load a derivative is taken with respect to
type Excitation int

const (
	ExciteForce Excitation = iota
	ExciteCenterForce
	ExciteTorque
	ExciteImpulse
	ExciteCenterImpulse
	ExciteAngularImpulse
)

func (e Excitation) IsImpulse() bool {
	return e == ExciteImpulse || e == ExciteCenterImpulse || e == ExciteAngularImpulse
}

// derivativeCache holds the per-frame operators shared by every query on a
// body. invInertia depends on the current orientation only, the rest on the
// predicted state it was computed from.
type derivativeCache struct {
	valid      bool
	invInertia mgl64.Mat3

	predictedValid bool
	rotation       mgl64.Mat3
	omega          mgl64.Mat3
}

// Skew returns the matrix [v]× such that [v]×·w = v × w
func Skew(v mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Mat3{
		0, v[2], -v[1],
		-v[2], 0, v[0],
		v[1], -v[0], 0,
	}
}

func outer(a, b mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Mat3{
		a[0] * b[0], a[1] * b[0], a[2] * b[0],
		a[0] * b[1], a[1] * b[1], a[2] * b[1],
		a[0] * b[2], a[1] * b[2], a[2] * b[2],
	}
}

func (rb *RigidBody) predictedOperators() (rotation, omega mgl64.Mat3) {
	if !rb.predictedValid || !rb.cache.predictedValid {
		p := rb.Predicted()
		rb.cache.rotation = p.Rotation.Mat4().Mat3()
		rb.cache.omega = Skew(p.AngularVelocity)
		rb.cache.predictedValid = true
	}
	return rb.cache.rotation, rb.cache.omega
}

// angularResponse maps an excitation to the change of the predicted angular
// velocity: δω' = A·δload.
func (rb *RigidBody) angularResponse(excite Excitation, q mgl64.Vec3) mgl64.Mat3 {
	invInertia := rb.InverseInertiaWorld()
	switch excite {
	case ExciteForce:
		arm := rb.Transform.Rotation.Rotate(q)
		return invInertia.Mul3(Skew(arm)).Mul(rb.h)
	case ExciteTorque:
		return invInertia.Mul(rb.h)
	case ExciteImpulse:
		arm := rb.Transform.Rotation.Rotate(q)
		return invInertia.Mul3(Skew(arm))
	case ExciteAngularImpulse:
		return invInertia
	}
	return mgl64.Mat3{}
}

// linearResponse maps an excitation to the change of the predicted velocity
func (rb *RigidBody) linearResponse(excite Excitation) float64 {
	invMass := rb.InverseMass()
	switch excite {
	case ExciteForce, ExciteCenterForce:
		return rb.h * invMass
	case ExciteImpulse, ExciteCenterImpulse:
		return invMass
	}
	return 0
}

// Derivative returns the 3×3 sensitivity of a predicted quantity of the local
// point (or direction) p to a unit load applied at the local point q. The
// matrices come from the integrator linearised around the current predicted
// state; static bodies always return zero.
func (rb *RigidBody) Derivative(measure Measure, p mgl64.Vec3, excite Excitation, q mgl64.Vec3) mgl64.Mat3 {
	if rb.IsStatic() || rb.h <= 0 {
		return mgl64.Mat3{}
	}
	beta := rb.integrator.Blend
	h := rb.h

	rotation, omega := rb.predictedOperators()
	arm := Skew(rotation.Mul3x1(p))
	angular := rb.angularResponse(excite, q)
	linear := rb.linearResponse(excite)

	switch measure {
	case MeasurePosition:
		// δx' = hβ·δv', δ(R'p) = -hβ·[R'p]×·δω'
		d := arm.Mul(-h * beta).Mul3(angular)
		return d.Add(mgl64.Ident3().Mul(h * beta * linear))
	case MeasureVelocity:
		// δ(v' + ω'×r') = δv' - [r']×·δω' + ω'×δr'
		k := arm.Mul(-1).Sub(omega.Mul3(arm).Mul(h * beta))
		return k.Mul3(angular).Add(mgl64.Ident3().Mul(linear))
	case MeasureDirection:
		return arm.Mul(-h * beta).Mul3(angular)
	}
	return mgl64.Mat3{}
}

// DPosDForce is d(predicted position of p)/d(force applied at q)
func (rb *RigidBody) DPosDForce(p, q mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasurePosition, p, ExciteForce, q)
}

func (rb *RigidBody) DPosDCenterForce(p mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasurePosition, p, ExciteCenterForce, mgl64.Vec3{})
}

func (rb *RigidBody) DPosDTorque(p mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasurePosition, p, ExciteTorque, mgl64.Vec3{})
}

func (rb *RigidBody) DPosDImpulse(p, q mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasurePosition, p, ExciteImpulse, q)
}

func (rb *RigidBody) DPosDCenterImpulse(p mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasurePosition, p, ExciteCenterImpulse, mgl64.Vec3{})
}

// DVelDForce is d(predicted velocity of p)/d(force applied at q)
func (rb *RigidBody) DVelDForce(p, q mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasureVelocity, p, ExciteForce, q)
}

func (rb *RigidBody) DVelDCenterForce(p mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasureVelocity, p, ExciteCenterForce, mgl64.Vec3{})
}

func (rb *RigidBody) DVelDTorque(p mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasureVelocity, p, ExciteTorque, mgl64.Vec3{})
}

func (rb *RigidBody) DVelDImpulse(p, q mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasureVelocity, p, ExciteImpulse, q)
}

func (rb *RigidBody) DVelDCenterImpulse(p mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasureVelocity, p, ExciteCenterImpulse, mgl64.Vec3{})
}

// DDirDTorque is d(predicted world direction of local u)/d(torque)
func (rb *RigidBody) DDirDTorque(u mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasureDirection, u, ExciteTorque, mgl64.Vec3{})
}

// DDirDImpulse is d(predicted world direction of local u)/d(angular impulse)
func (rb *RigidBody) DDirDImpulse(u mgl64.Vec3) mgl64.Mat3 {
	return rb.Derivative(MeasureDirection, u, ExciteAngularImpulse, mgl64.Vec3{})
}
