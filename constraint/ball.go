package constraint

import (
	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// BallJoint keeps a point of BodyA on a point of BodyB. The restriction value
// is the world force applied on BodyA, its opposite acting on BodyB.
type BallJoint struct {
	base Base

	// Pivot is the world point joined at Init
	Pivot mgl64.Vec3

	localA, localB mgl64.Vec3

	probes  [2]Probe
	effects [2]Effect
}

// NewBallJoint joins bodyA and bodyB at the world point pivot
func NewBallJoint(bodyA, bodyB *actor.RigidBody, pivot mgl64.Vec3) *BallJoint {
	j := &BallJoint{Pivot: pivot}
	j.base.setup("ball", 3, bodyA, bodyB)
	return j
}

func (j *BallJoint) Base() *Base {
	return &j.base
}

func (j *BallJoint) Init() error {
	if err := j.base.validate(); err != nil {
		return err
	}
	j.localA = j.base.BodyA.Transform.ToLocal(j.Pivot)
	j.localB = j.base.BodyB.Transform.ToLocal(j.Pivot)

	identity := []mgl64.Vec3{axisX, axisY, axisZ}
	opposite := []mgl64.Vec3{axisX.Mul(-1), axisY.Mul(-1), axisZ.Mul(-1)}
	j.probes = [2]Probe{
		{Body: j.base.BodyA, Point: j.localA, Measure: actor.MeasurePosition, Gradient: identity},
		{Body: j.base.BodyB, Point: j.localB, Measure: actor.MeasurePosition, Gradient: opposite},
	}
	j.effects = [2]Effect{
		{Body: j.base.BodyA, Point: j.localA, Kind: actor.ExciteForce, Dirs: identity},
		{Body: j.base.BodyB, Point: j.localB, Kind: actor.ExciteForce, Dirs: opposite},
	}
	return j.base.ready()
}

// Anchors returns the joined points in the local space of each body
func (j *BallJoint) Anchors() (mgl64.Vec3, mgl64.Vec3) {
	return j.localA, j.localB
}

func (j *BallJoint) Error(out []float64) {
	d := j.base.pointError(j.base.BodyA, j.localA).Sub(j.base.pointError(j.base.BodyB, j.localB))
	out[0], out[1], out[2] = d[0], d[1], d[2]
}

func (j *BallJoint) Probes() []Probe {
	return j.probes[:]
}

func (j *BallJoint) Effects() []Effect {
	return j.effects[:]
}

func (j *BallJoint) NewFrame(h float64) {}

func (j *BallJoint) PostProcessing() {}
