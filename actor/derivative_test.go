package actor

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// spinningBody returns a body with a generic orientation and motion, in the
// middle of a frame that already carries some loads
func spinningBody(integrator Integrator) *RigidBody {
	rotation := mgl64.QuatRotate(0.9, mgl64.Vec3{1, -2, 0.5}.Normalize())
	rb := NewRigidBody(NewTransformAt(mgl64.Vec3{0.3, 1, -2}, rotation), &Box{HalfExtents: mgl64.Vec3{0.5, 1, 1.5}}, 2)
	rb.SetVelocity(mgl64.Vec3{0.2, -0.1, 0.4})
	rb.SetAngularVelocity(mgl64.Vec3{0.5, -0.3, 0.8})
	rb.BeginFrame(0.01, mgl64.Vec3{0, -9.81, 0}, integrator)
	rb.ApplyForce(mgl64.Vec3{0.5, 0, 0}, FrameLocal, mgl64.Vec3{0, 1, 0})
	return rb
}

func measure(rb *RigidBody, m Measure, p mgl64.Vec3) mgl64.Vec3 {
	switch m {
	case MeasurePosition:
		return rb.PredictedPoint(p)
	case MeasureVelocity:
		return rb.PredictedPointVelocity(p)
	}
	return rb.PredictedDirection(p)
}

func excite(rb *RigidBody, e Excitation, q, v mgl64.Vec3) {
	switch e {
	case ExciteForce:
		rb.ApplyForce(q, FrameLocal, v)
	case ExciteCenterForce:
		rb.ApplyCenterForce(v)
	case ExciteTorque:
		rb.ApplyTorque(v)
	case ExciteImpulse:
		rb.ApplyImpulse(q, FrameLocal, v)
	case ExciteCenterImpulse:
		rb.ApplyCenterImpulse(v)
	case ExciteAngularImpulse:
		rb.ApplyAngularImpulse(v)
	}
}

// empiricalDerivative probes the prediction with small loads along each axis
func empiricalDerivative(rb *RigidBody, m Measure, p mgl64.Vec3, e Excitation, q mgl64.Vec3) mgl64.Mat3 {
	const eps = 1e-6
	base := measure(rb, m, p)

	var d mgl64.Mat3
	for k := 0; k < 3; k++ {
		var v mgl64.Vec3
		v[k] = eps

		rb.BeginTest()
		excite(rb, e, q, v)
		col := measure(rb, m, p).Sub(base).Mul(1 / eps)
		rb.EndTest()

		d.SetCol(k, col)
	}
	return d
}

func maxAbs(m mgl64.Mat3) float64 {
	var v float64
	for _, x := range m {
		v = math.Max(v, math.Abs(x))
	}
	return v
}

// =============================================================================
// Derivative Tests
// =============================================================================

func TestDerivative_MatchesFiniteDifferences(t *testing.T) {
	p := mgl64.Vec3{0.5, -1, 1.5}
	q := mgl64.Vec3{-0.5, 1, 0.25}

	measures := []Measure{MeasurePosition, MeasureVelocity, MeasureDirection}
	excitations := []Excitation{ExciteForce, ExciteCenterForce, ExciteTorque, ExciteImpulse, ExciteCenterImpulse, ExciteAngularImpulse}

	for _, integrator := range []Integrator{Symplectic, Midpoint} {
		for _, m := range measures {
			for _, e := range excitations {
				name := fmt.Sprintf("%s/measure%d/excite%d", integrator.Name, m, e)
				t.Run(name, func(t *testing.T) {
					rb := spinningBody(integrator)
					point := p
					if m == MeasureDirection {
						point = p.Normalize()
					}

					analytic := rb.Derivative(m, point, e, q)
					empirical := empiricalDerivative(rb, m, point, e, q)

					scale := math.Max(maxAbs(empirical), 1e-12)
					// the closed form is first order in h·|ω|
					if diff := maxAbs(analytic.Sub(empirical)); diff > 0.02*scale+1e-8 {
						t.Errorf("analytic %v\nempirical %v\n|diff| = %g, scale %g", analytic, empirical, diff, scale)
					}
				})
			}
		}
	}
}

func TestDerivative_NamedWrappers(t *testing.T) {
	rb := spinningBody(Symplectic)
	p := mgl64.Vec3{1, 0, 0}
	q := mgl64.Vec3{0, 1, 0}

	tests := []struct {
		name string
		got  mgl64.Mat3
		want mgl64.Mat3
	}{
		{"DPosDForce", rb.DPosDForce(p, q), rb.Derivative(MeasurePosition, p, ExciteForce, q)},
		{"DPosDCenterForce", rb.DPosDCenterForce(p), rb.Derivative(MeasurePosition, p, ExciteCenterForce, q)},
		{"DPosDTorque", rb.DPosDTorque(p), rb.Derivative(MeasurePosition, p, ExciteTorque, q)},
		{"DPosDImpulse", rb.DPosDImpulse(p, q), rb.Derivative(MeasurePosition, p, ExciteImpulse, q)},
		{"DPosDCenterImpulse", rb.DPosDCenterImpulse(p), rb.Derivative(MeasurePosition, p, ExciteCenterImpulse, q)},
		{"DVelDForce", rb.DVelDForce(p, q), rb.Derivative(MeasureVelocity, p, ExciteForce, q)},
		{"DVelDCenterForce", rb.DVelDCenterForce(p), rb.Derivative(MeasureVelocity, p, ExciteCenterForce, q)},
		{"DVelDTorque", rb.DVelDTorque(p), rb.Derivative(MeasureVelocity, p, ExciteTorque, q)},
		{"DVelDImpulse", rb.DVelDImpulse(p, q), rb.Derivative(MeasureVelocity, p, ExciteImpulse, q)},
		{"DVelDCenterImpulse", rb.DVelDCenterImpulse(p), rb.Derivative(MeasureVelocity, p, ExciteCenterImpulse, q)},
		{"DDirDTorque", rb.DDirDTorque(p), rb.Derivative(MeasureDirection, p, ExciteTorque, q)},
		{"DDirDImpulse", rb.DDirDImpulse(p), rb.Derivative(MeasureDirection, p, ExciteAngularImpulse, q)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !mat3Equal(tt.got, tt.want, 1e-15) {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDerivative_CenterForceIsTranslation(t *testing.T) {
	rb := NewRigidBody(NewTransform(), nil, 4)
	rb.BeginFrame(0.1, mgl64.Vec3{}, Midpoint)

	// hβ·h/m = 0.1·0.5·0.1/4
	want := mgl64.Ident3().Mul(0.00125)
	if got := rb.DPosDCenterForce(mgl64.Vec3{3, 2, 1}); !mat3Equal(got, want, 1e-15) {
		t.Errorf("DPosDCenterForce() = %v, want %v", got, want)
	}
	if got := rb.DVelDCenterImpulse(mgl64.Vec3{3, 2, 1}); !mat3Equal(got, mgl64.Ident3().Mul(0.25), 1e-15) {
		t.Errorf("DVelDCenterImpulse() = %v, want I/4", got)
	}
}

func TestDerivative_StaticIsZero(t *testing.T) {
	anchor := NewAnchor(NewTransform(), nil)
	anchor.BeginFrame(0.1, mgl64.Vec3{}, Symplectic)

	if got := anchor.DPosDForce(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 1, 0}); got != (mgl64.Mat3{}) {
		t.Errorf("anchor DPosDForce() = %v, want zero", got)
	}
}

func TestDerivative_SingleAxis(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, 1)
	rb.SetSingleAxis(mgl64.Vec3{0, 0, 1})
	rb.BeginFrame(0.05, mgl64.Vec3{}, Symplectic)

	p := mgl64.Vec3{1, 0, 0}
	analytic := rb.DVelDTorque(p)
	empirical := empiricalDerivative(rb, MeasureVelocity, p, ExciteTorque, mgl64.Vec3{})

	if !mat3Equal(analytic, empirical, 1e-6) {
		t.Errorf("analytic %v, empirical %v", analytic, empirical)
	}
	// torques about x and y cannot move the point
	if !almostEqual(analytic.At(1, 0), 0, 1e-15) || !almostEqual(analytic.At(1, 1), 0, 1e-15) {
		t.Errorf("off-axis torque has effect: %v", analytic)
	}
}

func TestSkew(t *testing.T) {
	a := mgl64.Vec3{1, -2, 3}
	b := mgl64.Vec3{0.5, 4, -1}

	if got := Skew(a).Mul3x1(b); !vec3AlmostEqual(got, a.Cross(b), 1e-15) {
		t.Errorf("Skew(a)·b = %v, want %v", got, a.Cross(b))
	}
}
