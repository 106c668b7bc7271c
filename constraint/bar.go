package constraint

import (
	"fmt"

	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Bar keeps two points at a fixed distance. A positive value is a tension:
// it pulls the two points towards each other.
type Bar struct {
	base Base

	// PointA and PointB are the world end points at Init
	PointA, PointB mgl64.Vec3
	// Length is the rest length; a negative length means the distance at Init
	Length float64

	localA, localB mgl64.Vec3
	dirA, dirB     []mgl64.Vec3

	probes  [2]Probe
	effects [2]Effect
}

// NewBar creates a bar whose rest length is the current distance of the ends
func NewBar(bodyA, bodyB *actor.RigidBody, pointA, pointB mgl64.Vec3) *Bar {
	return NewBarLength(bodyA, bodyB, pointA, pointB, -1)
}

// NewBarLength creates a bar with an explicit rest length
func NewBarLength(bodyA, bodyB *actor.RigidBody, pointA, pointB mgl64.Vec3, length float64) *Bar {
	b := &Bar{PointA: pointA, PointB: pointB, Length: length}
	b.base.setup("bar", 1, bodyA, bodyB)
	b.dirA = make([]mgl64.Vec3, 1)
	b.dirB = make([]mgl64.Vec3, 1)
	return b
}

func (b *Bar) Base() *Base {
	return &b.base
}

func (b *Bar) Init() error {
	if err := b.base.validate(); err != nil {
		return err
	}
	span := b.PointA.Sub(b.PointB).Len()
	if span == 0 {
		return fmt.Errorf("%s: coincident end points: %w", b.base.Name, ErrZeroDirection)
	}
	if b.Length < 0 {
		b.Length = span
	}
	b.localA = b.base.BodyA.Transform.ToLocal(b.PointA)
	b.localB = b.base.BodyB.Transform.ToLocal(b.PointB)

	b.probes = [2]Probe{
		{Body: b.base.BodyA, Point: b.localA, Measure: actor.MeasurePosition, Gradient: make([]mgl64.Vec3, 1)},
		{Body: b.base.BodyB, Point: b.localB, Measure: actor.MeasurePosition, Gradient: make([]mgl64.Vec3, 1)},
	}
	b.effects = [2]Effect{
		{Body: b.base.BodyA, Point: b.localA, Kind: actor.ExciteForce, Dirs: b.dirA},
		{Body: b.base.BodyB, Point: b.localB, Kind: actor.ExciteForce, Dirs: b.dirB},
	}
	b.anchor()
	return b.base.ready()
}

// anchor fixes the direction of the force from the current state
func (b *Bar) anchor() {
	n := b.base.BodyA.WorldPoint(b.localA).Sub(b.base.BodyB.WorldPoint(b.localB))
	if n.Len() == 0 {
		return
	}
	n = n.Normalize()
	b.dirA[0] = n.Mul(-1)
	b.dirB[0] = n
}

// Distance is the current distance between the two ends
func (b *Bar) Distance() float64 {
	return b.base.BodyA.WorldPoint(b.localA).Sub(b.base.BodyB.WorldPoint(b.localB)).Len()
}

// PredictedDistance is the distance at the end of the frame
func (b *Bar) PredictedDistance() float64 {
	return b.base.BodyA.PredictedPoint(b.localA).Sub(b.base.BodyB.PredictedPoint(b.localB)).Len()
}

func (b *Bar) Error(out []float64) {
	d := b.base.pointError(b.base.BodyA, b.localA).Sub(b.base.pointError(b.base.BodyB, b.localB))
	out[0] = d.Len() - b.Length
}

func (b *Bar) Probes() []Probe {
	d := b.base.pointError(b.base.BodyA, b.localA).Sub(b.base.pointError(b.base.BodyB, b.localB))
	n := b.dirB[0]
	if d.Len() > 0 {
		n = d.Normalize()
	}
	b.probes[0].Gradient[0] = n
	b.probes[1].Gradient[0] = n.Mul(-1)
	return b.probes[:]
}

func (b *Bar) Effects() []Effect {
	return b.effects[:]
}

func (b *Bar) NewFrame(h float64) {
	b.anchor()
}

func (b *Bar) PostProcessing() {}
