package constraint

import (
	"fmt"

	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Hinge is a ball joint whose bodies may only rotate relative to each other
// about one axis. Dimensions 0-2 are the pivot force on BodyA, 3-4 the
// torques keeping the axis of BodyA orthogonal to two directions of BodyB.
type Hinge struct {
	base Base

	Pivot mgl64.Vec3
	Axis  mgl64.Vec3

	localA, localB mgl64.Vec3
	axisA          mgl64.Vec3
	normalB        [2]mgl64.Vec3

	torqueA, torqueB []mgl64.Vec3
	probes           [5]Probe
	effects          [4]Effect
}

// NewHinge joins bodyA and bodyB at pivot, free to rotate about axis (world)
func NewHinge(bodyA, bodyB *actor.RigidBody, pivot, axis mgl64.Vec3) *Hinge {
	h := &Hinge{Pivot: pivot, Axis: axis}
	h.base.setup("hinge", 5, bodyA, bodyB)
	h.torqueA = make([]mgl64.Vec3, 5)
	h.torqueB = make([]mgl64.Vec3, 5)
	return h
}

func (h *Hinge) Base() *Base {
	return &h.base
}

func (h *Hinge) Init() error {
	if err := h.base.validate(); err != nil {
		return err
	}
	if h.Axis.Len() == 0 {
		return fmt.Errorf("%s: %w", h.base.Name, ErrZeroDirection)
	}
	axis := h.Axis.Normalize()
	a, b := h.base.BodyA, h.base.BodyB

	h.localA = a.Transform.ToLocal(h.Pivot)
	h.localB = b.Transform.ToLocal(h.Pivot)
	h.axisA = a.Transform.InverseRotation.Rotate(axis)
	t1, t2 := actor.TangentBasis(axis)
	h.normalB = [2]mgl64.Vec3{
		b.Transform.InverseRotation.Rotate(t1),
		b.Transform.InverseRotation.Rotate(t2),
	}

	pos := []mgl64.Vec3{axisX, axisY, axisZ, zero, zero}
	neg := []mgl64.Vec3{axisX.Mul(-1), axisY.Mul(-1), axisZ.Mul(-1), zero, zero}
	h.probes = [5]Probe{
		{Body: a, Point: h.localA, Measure: actor.MeasurePosition, Gradient: pos},
		{Body: b, Point: h.localB, Measure: actor.MeasurePosition, Gradient: neg},
		{Body: a, Point: h.axisA, Measure: actor.MeasureDirection, Gradient: make([]mgl64.Vec3, 5)},
		{Body: b, Point: h.normalB[0], Measure: actor.MeasureDirection, Gradient: make([]mgl64.Vec3, 5)},
		{Body: b, Point: h.normalB[1], Measure: actor.MeasureDirection, Gradient: make([]mgl64.Vec3, 5)},
	}
	h.effects = [4]Effect{
		{Body: a, Point: h.localA, Kind: actor.ExciteForce, Dirs: pos},
		{Body: b, Point: h.localB, Kind: actor.ExciteForce, Dirs: neg},
		{Body: a, Kind: actor.ExciteTorque, Dirs: h.torqueA},
		{Body: b, Kind: actor.ExciteTorque, Dirs: h.torqueB},
	}
	h.anchor()
	return h.base.ready()
}

// anchor sets the torque directions that turn the axis of BodyA towards each
// normal of BodyB
func (h *Hinge) anchor() {
	axis := h.base.BodyA.WorldDirection(h.axisA)
	for k, n := range h.normalB {
		t := axis.Cross(h.base.BodyB.WorldDirection(n))
		h.torqueA[3+k] = t
		h.torqueB[3+k] = t.Mul(-1)
	}
}

// WorldAxis is the current hinge axis carried by BodyA
func (h *Hinge) WorldAxis() mgl64.Vec3 {
	return h.base.BodyA.WorldDirection(h.axisA)
}

func (h *Hinge) Error(out []float64) {
	d := h.base.pointError(h.base.BodyA, h.localA).Sub(h.base.pointError(h.base.BodyB, h.localB))
	out[0], out[1], out[2] = d[0], d[1], d[2]

	axis := h.base.BodyA.PredictedDirection(h.axisA)
	out[3] = axis.Dot(h.base.BodyB.PredictedDirection(h.normalB[0]))
	out[4] = axis.Dot(h.base.BodyB.PredictedDirection(h.normalB[1]))
}

func (h *Hinge) Probes() []Probe {
	axis := h.base.BodyA.PredictedDirection(h.axisA)
	n1 := h.base.BodyB.PredictedDirection(h.normalB[0])
	n2 := h.base.BodyB.PredictedDirection(h.normalB[1])

	h.probes[2].Gradient[3] = n1
	h.probes[2].Gradient[4] = n2
	h.probes[3].Gradient[3] = axis
	h.probes[4].Gradient[4] = axis
	return h.probes[:]
}

func (h *Hinge) Effects() []Effect {
	return h.effects[:]
}

func (h *Hinge) NewFrame(step float64) {
	h.anchor()
}

func (h *Hinge) PostProcessing() {}
