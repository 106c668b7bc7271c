package constraint

import (
	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Rope is a slack element. It watches a bar that can only pull: while the
// rope is slack the bar is inactive, once the ends move further apart than the
// length the bar is activated, and it is handed back as soon as it would
// have to push.
type Rope struct {
	bar  *Bar
	taut bool

	// Snaps counts the times the bar was handed back
	Snaps int
}

// NewRope creates the rope and its bar. The bar must be registered with the
// solver (inactive) and the rope added as a monitor.
func NewRope(bodyA, bodyB *actor.RigidBody, pointA, pointB mgl64.Vec3, length float64) *Rope {
	bar := NewBarLength(bodyA, bodyB, pointA, pointB, length)
	bar.base.Name = "rope"
	bar.base.SetMinForce(0, 0)

	r := &Rope{bar: bar}
	bar.base.SetMonitor(r)
	return r
}

// Bar is the constraint driven by the rope
func (r *Rope) Bar() *Bar {
	return r.bar
}

func (r *Rope) Taut() bool {
	return r.taut
}

// Watch activates the bar when the predicted distance exceeds the length
func (r *Rope) Watch(reg Registry) error {
	b := r.bar.Base()
	if !b.Initialized() {
		return nil
	}
	if b.Active() {
		r.taut = true
		return nil
	}

	r.taut = false
	if r.bar.PredictedDistance() > r.bar.Length {
		if err := reg.Activate(r.bar); err != nil {
			return err
		}
		r.taut = true
	}
	return nil
}

// Handoff marks the rope slack again
func (r *Rope) Handoff(c Constraint) {
	if c != Constraint(r.bar) {
		return
	}
	r.taut = false
	r.Snaps++
}
