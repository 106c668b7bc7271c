package constraint

import (
	"fmt"

	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Slider is a prismatic joint: a point of BodyA stays on a line carried by
// BodyB and the relative orientation of the bodies is locked. Dimensions 0-1
// are forces across the line, 2-4 the locking torque on BodyA.
type Slider struct {
	base Base

	Point mgl64.Vec3
	Axis  mgl64.Vec3

	localA, localB mgl64.Vec3
	axisB          mgl64.Vec3
	normalB        [2]mgl64.Vec3
	framesA        [3]mgl64.Vec3
	framesB        [3]mgl64.Vec3

	forceA, forceB []mgl64.Vec3
	probes         [10]Probe
	effects        [4]Effect
}

// NewSlider lets bodyA slide along axis (world) through point on bodyB
func NewSlider(bodyA, bodyB *actor.RigidBody, point, axis mgl64.Vec3) *Slider {
	s := &Slider{Point: point, Axis: axis}
	s.base.setup("slider", 5, bodyA, bodyB)
	s.forceA = make([]mgl64.Vec3, 5)
	s.forceB = make([]mgl64.Vec3, 5)
	return s
}

func (s *Slider) Base() *Base {
	return &s.base
}

func (s *Slider) Init() error {
	if err := s.base.validate(); err != nil {
		return err
	}
	if s.Axis.Len() == 0 {
		return fmt.Errorf("%s: %w", s.base.Name, ErrZeroDirection)
	}
	axis := s.Axis.Normalize()
	a, b := s.base.BodyA, s.base.BodyB

	s.localA = a.Transform.ToLocal(s.Point)
	s.localB = b.Transform.ToLocal(s.Point)
	s.axisB = b.Transform.InverseRotation.Rotate(axis)
	t1, t2 := actor.TangentBasis(axis)
	s.normalB = [2]mgl64.Vec3{
		b.Transform.InverseRotation.Rotate(t1),
		b.Transform.InverseRotation.Rotate(t2),
	}

	// frames of A and B that coincide in the locked orientation
	for i, e := range [3]mgl64.Vec3{axisX, axisY, axisZ} {
		s.framesA[i] = e
		s.framesB[i] = b.Transform.InverseRotation.Rotate(a.WorldDirection(e))
	}

	gradient := func() []mgl64.Vec3 { return make([]mgl64.Vec3, 5) }
	s.probes[0] = Probe{Body: a, Point: s.localA, Measure: actor.MeasurePosition, Gradient: gradient()}
	s.probes[1] = Probe{Body: b, Point: s.localB, Measure: actor.MeasurePosition, Gradient: gradient()}
	s.probes[2] = Probe{Body: b, Point: s.normalB[0], Measure: actor.MeasureDirection, Gradient: gradient()}
	s.probes[3] = Probe{Body: b, Point: s.normalB[1], Measure: actor.MeasureDirection, Gradient: gradient()}
	for i := range 3 {
		s.probes[4+i] = Probe{Body: a, Point: s.framesA[i], Measure: actor.MeasureDirection, Gradient: gradient()}
		s.probes[7+i] = Probe{Body: b, Point: s.framesB[i], Measure: actor.MeasureDirection, Gradient: gradient()}
	}

	torqueA := []mgl64.Vec3{zero, zero, axisX, axisY, axisZ}
	torqueB := []mgl64.Vec3{zero, zero, axisX.Mul(-1), axisY.Mul(-1), axisZ.Mul(-1)}
	s.effects = [4]Effect{
		{Body: a, Point: s.localA, Kind: actor.ExciteForce, Dirs: s.forceA},
		{Body: b, Kind: actor.ExciteForce, Dirs: s.forceB},
		{Body: a, Kind: actor.ExciteTorque, Dirs: torqueA},
		{Body: b, Kind: actor.ExciteTorque, Dirs: torqueB},
	}
	s.anchor()
	return s.base.ready()
}

// anchor fixes the force directions across the line and moves the reaction
// on BodyB under the current position of the sliding point
func (s *Slider) anchor() {
	a, b := s.base.BodyA, s.base.BodyB
	for k, n := range s.normalB {
		t := b.WorldDirection(n)
		s.forceA[k] = t
		s.forceB[k] = t.Mul(-1)
	}
	s.effects[1].Point = b.Transform.ToLocal(a.WorldPoint(s.localA))
}

// Travel is the signed position of the sliding point along the line
func (s *Slider) Travel() float64 {
	a, b := s.base.BodyA, s.base.BodyB
	return a.WorldPoint(s.localA).Sub(b.WorldPoint(s.localB)).Dot(b.WorldDirection(s.axisB))
}

func (s *Slider) Error(out []float64) {
	a, b := s.base.BodyA, s.base.BodyB
	d := s.base.pointError(a, s.localA).Sub(s.base.pointError(b, s.localB))
	out[0] = d.Dot(b.PredictedDirection(s.normalB[0]))
	out[1] = d.Dot(b.PredictedDirection(s.normalB[1]))

	lock := s.lockError()
	out[2], out[3], out[4] = lock[0], lock[1], lock[2]
}

// lockError is ½·Σ dA_i × dB_i, about minus the relative rotation vector
func (s *Slider) lockError() mgl64.Vec3 {
	var sum mgl64.Vec3
	for i := range 3 {
		dA := s.base.BodyA.PredictedDirection(s.framesA[i])
		dB := s.base.BodyB.PredictedDirection(s.framesB[i])
		sum = sum.Add(dA.Cross(dB))
	}
	return sum.Mul(0.5)
}

func (s *Slider) Probes() []Probe {
	a, b := s.base.BodyA, s.base.BodyB
	d := s.base.pointError(a, s.localA).Sub(s.base.pointError(b, s.localB))
	n1 := b.PredictedDirection(s.normalB[0])
	n2 := b.PredictedDirection(s.normalB[1])

	s.probes[0].Gradient[0], s.probes[0].Gradient[1] = n1, n2
	s.probes[1].Gradient[0], s.probes[1].Gradient[1] = n1.Mul(-1), n2.Mul(-1)
	s.probes[2].Gradient[0] = d
	s.probes[3].Gradient[1] = d

	for i := range 3 {
		dA := a.PredictedDirection(s.framesA[i])
		dB := b.PredictedDirection(s.framesB[i])
		// d(dA × dB) = -[dB]×·d(dA) + [dA]×·d(dB)
		rowsA := skewRows(dB, -0.5)
		rowsB := skewRows(dA, 0.5)
		for k := range 3 {
			s.probes[4+i].Gradient[2+k] = rowsA[k]
			s.probes[7+i].Gradient[2+k] = rowsB[k]
		}
	}
	return s.probes[:]
}

func (s *Slider) Effects() []Effect {
	return s.effects[:]
}

func (s *Slider) NewFrame(h float64) {
	s.anchor()
}

func (s *Slider) PostProcessing() {}
