package constraint

import (
	"fmt"
	"math"

	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultPenetrationBias is the share of the penetration depth removed per frame
	DefaultPenetrationBias = 0.2
)

// Collision is a one-frame non-penetration restriction at a contact point.
// Its value is the impulse along Normal applied on BodyA; BodyB receives the
// opposite. A negative impulse would pull the bodies together, so the
// constraint releases itself instead, and it is disposed of after the frame.
type Collision struct {
	base Base

	// Normal points from BodyB towards BodyA
	Normal mgl64.Vec3
	// Point is the world contact point
	Point mgl64.Vec3
	// Depth is the signed separation, negative when penetrating
	Depth      float64
	Elasticity float64
	Bias       float64

	localA, localB mgl64.Vec3
	target         float64

	dirA, dirB []mgl64.Vec3
	probes     [2]Probe
	effects    [2]Effect
}

// NewCollision creates the contact between bodyA and bodyB at a world point
func NewCollision(bodyA, bodyB *actor.RigidBody, point, normal mgl64.Vec3, depth float64) *Collision {
	c := &Collision{
		Normal: normal,
		Point:  point,
		Depth:  depth,
		Bias:   DefaultPenetrationBias,
	}
	if bodyA != nil && bodyB != nil {
		c.Elasticity = CombineElasticity(bodyA.Material, bodyB.Material)
	}
	c.base.setup("collision", 1, bodyA, bodyB)
	c.base.SetMinForce(0, 0)
	c.base.SetSoftness(SoftOff)
	c.base.disposable = true
	c.dirA = make([]mgl64.Vec3, 1)
	c.dirB = make([]mgl64.Vec3, 1)
	return c
}

// CombineElasticity mixes the elasticity of two materials for a contact
func CombineElasticity(matA, matB actor.Material) float64 {
	return (matA.Elasticity + matB.Elasticity) / 2.0
}

func (c *Collision) Base() *Base {
	return &c.base
}

func (c *Collision) Init() error {
	if err := c.base.validate(); err != nil {
		return err
	}
	if c.Normal.Len() == 0 {
		return fmt.Errorf("%s: %w", c.base.Name, ErrZeroDirection)
	}
	c.Normal = c.Normal.Normalize()
	c.localA = c.base.BodyA.Transform.ToLocal(c.Point)
	c.localB = c.base.BodyB.Transform.ToLocal(c.Point)
	c.dirA[0] = c.Normal
	c.dirB[0] = c.Normal.Mul(-1)

	c.probes = [2]Probe{
		{Body: c.base.BodyA, Point: c.localA, Measure: actor.MeasureVelocity, Gradient: c.dirA},
		{Body: c.base.BodyB, Point: c.localB, Measure: actor.MeasureVelocity, Gradient: c.dirB},
	}
	c.effects = [2]Effect{
		{Body: c.base.BodyA, Point: c.localA, Kind: actor.ExciteImpulse, Dirs: c.dirA},
		{Body: c.base.BodyB, Point: c.localB, Kind: actor.ExciteImpulse, Dirs: c.dirB},
	}
	return c.base.ready()
}

// NormalVelocity is the current separating velocity at the contact
func (c *Collision) NormalVelocity() float64 {
	return c.base.BodyA.PointVelocity(c.localA).Sub(c.base.BodyB.PointVelocity(c.localB)).Dot(c.Normal)
}

// PredictedNormalVelocity is the separating velocity at the end of the frame
func (c *Collision) PredictedNormalVelocity() float64 {
	vA := c.base.BodyA.PredictedPointVelocity(c.localA)
	vB := c.base.BodyB.PredictedPointVelocity(c.localB)
	return vA.Sub(vB).Dot(c.Normal)
}

// Target is the separating velocity the contact is solved for
func (c *Collision) Target() float64 {
	return c.target
}

func (c *Collision) Error(out []float64) {
	out[0] = c.PredictedNormalVelocity() - c.target
}

func (c *Collision) Probes() []Probe {
	return c.probes[:]
}

func (c *Collision) Effects() []Effect {
	return c.effects[:]
}

// NewFrame sets the rebound target from the approach velocity. A
// penetration adds a push out of it, a gap lets the bodies close it within
// the frame.
func (c *Collision) NewFrame(h float64) {
	c.target = math.Max(0, -c.Elasticity*c.NormalVelocity())
	if h <= 0 {
		return
	}
	if c.Depth < 0 {
		c.target += -c.Depth * c.Bias / h
	} else if c.Depth > 0 {
		c.target = math.Min(c.target, -c.Depth/h)
	}
}

func (c *Collision) PostProcessing() {}
