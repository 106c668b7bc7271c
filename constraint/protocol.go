package constraint

import (
	"math"

	"github.com/akmonengine/tether/actor"
	"github.com/akmonengine/tether/linalg"
	"github.com/go-gl/mathgl/mgl64"
)

// BeginFrame re-anchors c on the current body state and runs the oscillation
// duty cycle: a sign flip of the frame-to-frame change of the restriction
// value counts as one oscillation.
func BeginFrame(c Constraint, h float64) {
	b := c.Base()
	b.h = h
	b.violated = -1

	var dot, norm float64
	for i := range b.dim {
		change := b.value[i] - b.prev[i]
		dot += change * b.change[i]
		norm += change * change
		b.change[i] = change
	}

	switch {
	case dot < 0:
		b.nrOsc++
		b.nrCalm = 0
	case norm > 0 || dot > 0:
		b.nrCalm++
		b.nrOsc = 0
	}

	if b.softness == SoftAuto {
		if !b.soft && b.nrOsc >= b.maxOsc {
			b.soft = true
			b.nrCalm = 0
		} else if b.soft && b.nrCalm >= b.maxOsc {
			b.soft = false
			b.nrOsc = 0
		}
	}

	c.NewFrame(h)
}

// FirstEstimate warm-starts c from its previous value, extrapolated by the
// stiffness, and applies it
func FirstEstimate(c Constraint) {
	b := c.Base()
	for i := range b.dim {
		last := b.value[i]
		b.value[i] += b.stiffness * (b.value[i] - b.prev[i])
		b.prev[i] = last
	}
	ApplyRestrictions(c, b.value)
	b.applied = true
}

// ApplyRestrictions turns a restriction value into loads on the bodies
func ApplyRestrictions(c Constraint, value []float64) {
	for _, e := range c.Effects() {
		if e.Body == nil || e.Body.IsStatic() {
			continue
		}
		var load mgl64.Vec3
		for k, dir := range e.Dirs {
			if value[k] != 0 && dir != zero {
				load = load.Add(dir.Mul(value[k]))
			}
		}
		if load == zero {
			continue
		}

		switch e.Kind {
		case actor.ExciteForce:
			e.Body.ApplyForce(e.Point, actor.FrameLocal, load)
		case actor.ExciteCenterForce:
			e.Body.ApplyCenterForce(load)
		case actor.ExciteTorque:
			e.Body.ApplyTorque(load)
		case actor.ExciteImpulse:
			e.Body.ApplyImpulse(e.Point, actor.FrameLocal, load)
		case actor.ExciteCenterImpulse:
			e.Body.ApplyCenterImpulse(load)
		case actor.ExciteAngularImpulse:
			e.Body.ApplyAngularImpulse(load)
		}
	}
}

// TestRestrictionChanges checks value+delta against the limits. It returns
// false, remembering the offending dimension, when a limit would be crossed.
func TestRestrictionChanges(c Constraint, delta []float64) bool {
	b := c.Base()
	for i := range b.dim {
		v := b.value[i] + delta[i]
		if v > b.maxForce[i] || v < b.minForce[i] {
			b.violated = i
			return false
		}
	}
	return true
}

// ApplyRestrictionChanges accumulates delta into the value and applies it
func ApplyRestrictionChanges(c Constraint, delta []float64) {
	b := c.Base()
	for i := range b.dim {
		b.value[i] += delta[i]
	}
	ApplyRestrictions(c, delta)
	b.applied = true
}

// CheckRestrictions reports whether the current value is within limits
func CheckRestrictions(c Constraint) bool {
	b := c.Base()
	for i := range b.dim {
		if b.value[i] > b.maxForce[i] || b.value[i] < b.minForce[i] {
			b.violated = i
			return false
		}
	}
	return true
}

// Release withdraws the loads applied this frame and zeroes the value
func Release(c Constraint) {
	b := c.Base()
	if b.applied {
		for i := range b.dim {
			b.delta[i] = -b.value[i]
		}
		ApplyRestrictions(c, b.delta)
	}
	b.resetValue()
}

// PostProcess records the applied value and runs the concrete hook
func PostProcess(c Constraint) {
	b := c.Base()
	copy(b.reported, b.value)
	b.applied = false
	c.PostProcessing()
}

// BeginTest snapshots both bodies so probing loads can be undone
func BeginTest(c Constraint) {
	b := c.Base()
	b.testing++
	b.BodyA.BeginTest()
	b.BodyB.BeginTest()
}

func EndTest(c Constraint) {
	b := c.Base()
	if b.testing == 0 {
		return
	}
	b.BodyB.EndTest()
	b.BodyA.EndTest()
	b.testing--
}

// ========== JACOBIAN ==========

// Sensitivity writes into out (one row per dimension) the derivative of the
// error of c with respect to a unit load of the given kind on body at the
// local point q. It returns false if body is not measured by c.
func Sensitivity(c Constraint, body *actor.RigidBody, kind actor.Excitation, q mgl64.Vec3, out []mgl64.Vec3) bool {
	b := c.Base()
	for i := range out {
		out[i] = zero
	}
	if !b.Involves(body) {
		return false
	}

	found := false
	for _, p := range c.Probes() {
		if p.Body != body {
			continue
		}
		found = true

		d := body.Derivative(p.Measure, p.Point, kind, q)
		if b.soft && p.Measure == actor.MeasurePosition {
			d = d.Add(body.Derivative(actor.MeasureVelocity, p.Point, kind, q).Mul(b.h / 2))
		}
		dt := d.Transpose()
		for i, g := range p.Gradient {
			if g != zero {
				out[i] = out[i].Add(dt.Mul3x1(g))
			}
		}
	}
	return found
}

// DCdFq is the sensitivity of c to a force applied at the local point q of body
func DCdFq(c Constraint, body *actor.RigidBody, q mgl64.Vec3) ([]mgl64.Vec3, bool) {
	out := make([]mgl64.Vec3, c.Base().dim)
	ok := Sensitivity(c, body, actor.ExciteForce, q, out)
	return out, ok
}

// DCdF is the sensitivity of c to a force on the center of mass of body
func DCdF(c Constraint, body *actor.RigidBody) ([]mgl64.Vec3, bool) {
	out := make([]mgl64.Vec3, c.Base().dim)
	ok := Sensitivity(c, body, actor.ExciteCenterForce, zero, out)
	return out, ok
}

// DCdM is the sensitivity of c to a torque on body
func DCdM(c Constraint, body *actor.RigidBody) ([]mgl64.Vec3, bool) {
	out := make([]mgl64.Vec3, c.Base().dim)
	ok := Sensitivity(c, body, actor.ExciteTorque, zero, out)
	return out, ok
}

// DCdI is the sensitivity of c to an impulse at the local point q of body
func DCdI(c Constraint, body *actor.RigidBody, q mgl64.Vec3) ([]mgl64.Vec3, bool) {
	out := make([]mgl64.Vec3, c.Base().dim)
	ok := Sensitivity(c, body, actor.ExciteImpulse, q, out)
	return out, ok
}

// DCdRSub writes into out the D_other × D_c block dC_other/dR_c: how the
// error of other moves when the restriction value of c changes. It returns
// false when the block is zero.
func DCdRSub(c, other Constraint, out *linalg.Matrix) bool {
	cb, ob := c.Base(), other.Base()
	out.Resize(ob.dim, cb.dim)

	nonzero := false
	for _, e := range c.Effects() {
		if e.Body == nil || e.Body.IsStatic() || !ob.Involves(e.Body) {
			continue
		}
		if !Sensitivity(other, e.Body, e.Kind, e.Point, ob.rows) {
			continue
		}
		for j, dir := range e.Dirs {
			if dir == zero {
				continue
			}
			for i := range ob.dim {
				if v := ob.rows[i].Dot(dir); v != 0 {
					out.Add(i, j, v)
					nonzero = true
				}
			}
		}
	}
	return nonzero
}

// Shares reports whether two constraints act on a common dynamic body. Pairs
// that share none always have a zero Jacobian block.
func Shares(c, other Constraint) bool {
	cb, ob := c.Base(), other.Base()
	for _, body := range [2]*actor.RigidBody{cb.BodyA, cb.BodyB} {
		if body != nil && !body.IsStatic() && ob.Involves(body) {
			return true
		}
	}
	return false
}

// ProbeStep is the perturbation used for an empirical Jacobian column
func ProbeStep(c Constraint, dim int) float64 {
	return 1e-6 * math.Max(1, math.Abs(c.Base().value[dim]))
}
