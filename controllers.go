package tether

import (
	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Controller applies external forces at the start of every frame, before
// the constraints are solved
type Controller interface {
	ApplyForces(h float64)
}

// Spring is a damped spring between a local point of each body
type Spring struct {
	BodyA, BodyB   *actor.RigidBody
	PointA, PointB mgl64.Vec3
	Length         float64
	Stiffness      float64
	Damping        float64
}

// Tension is the force pulling the ends together, negative when pushing
func (s *Spring) Tension() float64 {
	pa := s.BodyA.WorldPoint(s.PointA)
	pb := s.BodyB.WorldPoint(s.PointB)
	d := pb.Sub(pa)
	dist := d.Len()
	if dist == 0 {
		return 0
	}
	dir := d.Mul(1 / dist)
	rate := s.BodyB.PointVelocity(s.PointB).Sub(s.BodyA.PointVelocity(s.PointA)).Dot(dir)

	return s.Stiffness*(dist-s.Length) + s.Damping*rate
}

func (s *Spring) ApplyForces(h float64) {
	d := s.BodyB.WorldPoint(s.PointB).Sub(s.BodyA.WorldPoint(s.PointA))
	if d.Len() == 0 {
		return
	}
	force := d.Normalize().Mul(s.Tension())

	s.BodyA.ApplyForce(s.PointA, actor.FrameLocal, force)
	s.BodyB.ApplyForce(s.PointB, actor.FrameLocal, force.Mul(-1))
}

// PID drives the center of mass of Body towards Target with a central force
type PID struct {
	Body   *actor.RigidBody
	Target mgl64.Vec3
	Kp     float64
	Ki     float64
	Kd     float64
	// MaxForce bounds the magnitude of the applied force, 0 for no bound
	MaxForce float64

	integral mgl64.Vec3
	prevErr  mgl64.Vec3
	first    bool
}

func NewPID(body *actor.RigidBody, target mgl64.Vec3, kp, ki, kd float64) *PID {
	return &PID{
		Body:   body,
		Target: target,
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		first:  true,
	}
}

// Compute returns the control force for a frame of length h
func (p *PID) Compute(h float64) mgl64.Vec3 {
	err := p.Target.Sub(p.Body.Transform.Position)

	if p.first || h <= 0 {
		p.prevErr = err
		p.first = false
		return err.Mul(p.Kp)
	}

	p.integral = p.integral.Add(err.Mul(h))
	derivative := err.Sub(p.prevErr).Mul(1 / h)
	p.prevErr = err

	return err.Mul(p.Kp).Add(p.integral.Mul(p.Ki)).Add(derivative.Mul(p.Kd))
}

func (p *PID) ApplyForces(h float64) {
	u := p.Compute(h)
	if p.MaxForce > 0 && u.Len() > p.MaxForce {
		u = u.Normalize().Mul(p.MaxForce)
	}
	p.Body.ApplyCenterForce(u)
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = mgl64.Vec3{}
	p.prevErr = mgl64.Vec3{}
	p.first = true
}
