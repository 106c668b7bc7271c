package tether

import (
	"math"
	"testing"

	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

func restingBody(position mgl64.Vec3) *actor.RigidBody {
	body := actor.NewRigidBody(actor.NewTransformAt(position, mgl64.QuatIdent()), nil, 1)
	body.BeginFrame(0.1, mgl64.Vec3{}, actor.Symplectic)
	return body
}

func TestSpring_Tension(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		velocity float64
		damping  float64
		want     float64
	}{
		{"stretched", 2, 0, 0, 10},
		{"compressed", 0.5, 0, 0, -5},
		{"at rest length", 1, 0, 0, 0},
		{"separating", 1, 2, 3, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := restingBody(mgl64.Vec3{})
			b := restingBody(mgl64.Vec3{tt.distance, 0, 0})
			b.SetVelocity(mgl64.Vec3{tt.velocity, 0, 0})

			s := &Spring{BodyA: a, BodyB: b, Length: 1, Stiffness: 10, Damping: tt.damping}
			if got := s.Tension(); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Tension() = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestSpring_ApplyForces(t *testing.T) {
	a := restingBody(mgl64.Vec3{})
	b := restingBody(mgl64.Vec3{2, 0, 0})

	s := &Spring{BodyA: a, BodyB: b, Length: 1, Stiffness: 10}
	s.ApplyForces(0.1)

	if got := a.Force(); !got.ApproxEqual(mgl64.Vec3{10, 0, 0}) {
		t.Errorf("force on A = %v, want pull towards B", got)
	}
	if got := b.Force(); !got.ApproxEqual(mgl64.Vec3{-10, 0, 0}) {
		t.Errorf("force on B = %v, want pull towards A", got)
	}
	if a.PredictedVelocity().X() <= 0 || b.PredictedVelocity().X() >= 0 {
		t.Error("a stretched spring should bring the ends together")
	}
}

func TestPID_Compute(t *testing.T) {
	body := restingBody(mgl64.Vec3{})
	pid := NewPID(body, mgl64.Vec3{1, 0, 0}, 2, 1, 0.5)

	if got := pid.Compute(0.1); !got.ApproxEqual(mgl64.Vec3{2, 0, 0}) {
		t.Errorf("first Compute() = %v, want the proportional term only", got)
	}
	if got := pid.Compute(0.1); !got.ApproxEqualThreshold(mgl64.Vec3{2.1, 0, 0}, 1e-12) {
		t.Errorf("second Compute() = %v, want proportional plus integral", got)
	}

	// moving towards the target lowers the error, the derivative brakes
	body.Move(mgl64.Vec3{0.5, 0, 0})
	got := pid.Compute(0.1)
	want := 2*0.5 + 1*(0.1+0.05) + 0.5*(0.5-1)/0.1
	if math.Abs(got.X()-want) > 1e-9 {
		t.Errorf("third Compute() = %v, want %g", got, want)
	}

	pid.Reset()
	if got := pid.Compute(0.1); !got.ApproxEqual(mgl64.Vec3{1, 0, 0}) {
		t.Errorf("Compute() after Reset = %v", got)
	}
}

func TestPID_MaxForce(t *testing.T) {
	body := restingBody(mgl64.Vec3{})
	pid := NewPID(body, mgl64.Vec3{0, 3, 4}, 100, 0, 0)
	pid.MaxForce = 5

	pid.ApplyForces(0.1)

	if got := body.Force(); !got.ApproxEqualThreshold(mgl64.Vec3{0, 3, 4}, 1e-12) {
		t.Errorf("Force() = %v, want the clamped force along the error", got)
	}
}

func TestWorld_PIDReachesTarget(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	body := addBody(w, mgl64.Vec3{}, 1)
	pid := NewPID(body, mgl64.Vec3{0, 1, 0}, 20, 0, 8)
	w.AddController(pid)

	for range 1000 {
		w.Step(frameStep)
	}

	if d := body.Transform.Position.Sub(pid.Target).Len(); d > 1e-3 {
		t.Errorf("body ended %g away from the target", d)
	}
}
