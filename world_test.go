package tether

import (
	"errors"
	"math"
	"testing"

	"github.com/akmonengine/tether/actor"
	"github.com/akmonengine/tether/config"
	"github.com/akmonengine/tether/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

func TestNewWorld_Defaults(t *testing.T) {
	w, err := NewWorld(nil)
	if err != nil {
		t.Fatalf("NewWorld(nil) error: %v", err)
	}

	if !w.Integrator.Valid() {
		t.Error("default integrator should be valid")
	}
	if w.Gravity != (mgl64.Vec3{0, -9.81, 0}) {
		t.Errorf("Gravity = %v", w.Gravity)
	}
	if w.Workers != DEFAULT_WORKERS {
		t.Errorf("Workers = %d, want %d", w.Workers, DEFAULT_WORKERS)
	}
	if w.Manager() != nil {
		t.Error("a world starts without a manager")
	}
	if w.Logger() == nil {
		t.Error("a world always has a logger")
	}
}

func TestNewWorld_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		want   error
	}{
		{"no integrator", func(cfg *config.Config) { cfg.Integrator = "" }, ErrNoIntegrator},
		{"unknown integrator", func(cfg *config.Config) { cfg.Integrator = "verlet" }, ErrNoIntegrator},
		{"no iterations", func(cfg *config.Config) { cfg.Solver.MaxIter = 0 }, config.ErrInvalid},
		{"negative margin", func(cfg *config.Config) { cfg.Contact.Margin = -1 }, config.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			if _, err := NewWorld(cfg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// Two bodies held at their rest distance by a bar, no gravity: nothing moves
// and the bar carries no load
func TestWorld_BarAtRest(t *testing.T) {
	w, m := newTestWorld(t, nil)
	a := addBody(w, mgl64.Vec3{0, 0, 0}, 1)
	b := addBody(w, mgl64.Vec3{2, 0, 0}, 1)

	bar := constraint.NewBarLength(a, b, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 0, 0}, 2)
	if _, err := m.Add(bar); err != nil {
		t.Fatal(err)
	}

	for range 100 {
		w.Step(0.02)
	}

	if !a.Transform.Position.ApproxEqualThreshold(mgl64.Vec3{0, 0, 0}, 1e-12) {
		t.Errorf("body A moved to %v", a.Transform.Position)
	}
	if !b.Transform.Position.ApproxEqualThreshold(mgl64.Vec3{2, 0, 0}, 1e-12) {
		t.Errorf("body B moved to %v", b.Transform.Position)
	}
	if v := bar.Base().Reported()[0]; math.Abs(v) > 1e-9 {
		t.Errorf("bar reported %g, want 0", v)
	}
}

// A sphere dropped on a plane closes the gap without passing the surface,
// and a contact created at the surface never lets it approach further
func TestWorld_SphereOnPlane(t *testing.T) {
	w, m := newTestWorld(t, func(cfg *config.Config) {
		cfg.Gravity = [3]float64{0, -1, 0}
	})
	floor := actor.NewAnchor(actor.NewTransform(), &actor.Plane{Normal: mgl64.Vec3{0, 1, 0}})
	w.AddBody(floor)
	sphere := actor.NewRigidBody(
		actor.NewTransformAt(mgl64.Vec3{0, 0.6, 0}, mgl64.QuatIdent()),
		&actor.Sphere{Radius: 0.5},
		1,
	)
	w.AddBody(sphere)

	created := 0
	w.Subscribe(COLLISION_CREATED, func(event Event) {
		e := event.(CollisionCreatedEvent)
		if e.BodyA != sphere || e.BodyB != floor {
			t.Errorf("unexpected contact %+v", e)
		}
		created++
	})

	for frame := range 200 {
		before := created
		touching := sphere.Transform.Position.Y()-0.5 <= 1e-9
		w.Step(frameStep)

		if created > before && touching && sphere.Velocity.Y() < -1e-6 {
			t.Fatalf("frame %d: sphere still approaching at %g after contact", frame, sphere.Velocity.Y())
		}
		if bottom := sphere.Transform.Position.Y() - 0.5; bottom < -1e-6 {
			t.Fatalf("frame %d: sphere sank to %g", frame, bottom)
		}
		if m.Len() != 0 {
			t.Fatalf("frame %d: %d contacts survived the frame", frame, m.Len())
		}
	}

	if created == 0 {
		t.Fatal("the sphere never touched the floor")
	}
	if bottom := sphere.Transform.Position.Y() - 0.5; bottom > 1e-4 {
		t.Errorf("sphere floats %g above the floor", bottom)
	}
	if math.Abs(sphere.Velocity.Y()) > 0.02 {
		t.Errorf("sphere should have come to rest, velocity %v", sphere.Velocity)
	}
}

func TestWorld_RemoveBody(t *testing.T) {
	w, m := newTestWorld(t, nil)
	anchor := addAnchor(w, mgl64.Vec3{0, 2, 0})
	a := addBody(w, mgl64.Vec3{0, 1, 0}, 1)
	b := addBody(w, mgl64.Vec3{1, 1, 0}, 1)

	ha, err := m.Add(constraint.NewBallJoint(a, anchor, mgl64.Vec3{0, 1.5, 0}))
	if err != nil {
		t.Fatal(err)
	}
	hb, err := m.Add(constraint.NewBallJoint(b, anchor, mgl64.Vec3{1, 1.5, 0}))
	if err != nil {
		t.Fatal(err)
	}

	w.RemoveBody(a)

	if len(w.Bodies) != 2 {
		t.Errorf("len(Bodies) = %d, want 2", len(w.Bodies))
	}
	if _, ok := m.Get(ha); ok {
		t.Error("constraint on the removed body should be gone")
	}
	if _, ok := m.Get(hb); !ok {
		t.Error("unrelated constraint should survive")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

type countingController struct {
	world *World
	calls int
}

func (c *countingController) ApplyForces(h float64) {
	c.calls++
	c.world.RemoveController(c)
}

func TestWorld_ControllerRemovesItself(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	addBody(w, mgl64.Vec3{}, 1)

	once := &countingController{world: w}
	other := &countingController{world: w}
	w.AddController(once)
	w.AddController(other)

	w.Step(frameStep)
	w.Step(frameStep)

	if once.calls != 1 || other.calls != 1 {
		t.Errorf("calls = %d and %d, want 1 each", once.calls, other.calls)
	}
	if len(w.controllers) != 0 {
		t.Errorf("%d controllers left", len(w.controllers))
	}
}

func TestWorld_EventsFlushedAfterStep(t *testing.T) {
	w, m := newTestWorld(t, nil)
	a := addBody(w, mgl64.Vec3{0, 0, 0}, 1)
	b := addBody(w, mgl64.Vec3{1, 0, 0}, 1)

	var activated, deactivated int
	w.Subscribe(CONSTRAINT_ACTIVATED, func(event Event) { activated++ })
	w.Subscribe(CONSTRAINT_DEACTIVATED, func(event Event) { deactivated++ })

	joint := constraint.NewBallJoint(a, b, mgl64.Vec3{0.5, 0, 0})
	h, err := m.Add(joint)
	if err != nil {
		t.Fatal(err)
	}
	if activated != 0 || w.Events.Pending() != 1 {
		t.Fatalf("events should wait for the end of the frame, %d delivered %d pending", activated, w.Events.Pending())
	}

	w.Step(frameStep)
	if activated != 1 || w.Events.Pending() != 0 {
		t.Errorf("activated = %d, pending = %d", activated, w.Events.Pending())
	}

	if err := m.Remove(h); err != nil {
		t.Fatal(err)
	}
	w.Step(frameStep)
	if deactivated != 1 {
		t.Errorf("deactivated = %d, want 1", deactivated)
	}
}

type recordingSink struct {
	bodies      map[*actor.RigidBody]int
	constraints map[constraint.Constraint][]float64
}

func (s *recordingSink) ReportBody(body *actor.RigidBody) {
	s.bodies[body]++
}

func (s *recordingSink) ReportConstraint(c constraint.Constraint) {
	s.constraints[c] = append(s.constraints[c], c.Base().Reported()[0])
}

type recordingGeometry struct {
	pulled, pushed int
	height         float64
}

func (g *recordingGeometry) Pull(body *actor.RigidBody) { g.pulled++ }

func (g *recordingGeometry) Push(body *actor.RigidBody) {
	g.pushed++
	g.height = body.Transform.Position.Y()
}

func TestWorld_ForceSinkAndGeometry(t *testing.T) {
	sink := &recordingSink{
		bodies:      make(map[*actor.RigidBody]int),
		constraints: make(map[constraint.Constraint][]float64),
	}
	geometry := &recordingGeometry{}
	w, m := newTestWorld(t, func(cfg *config.Config) {
		cfg.Gravity = [3]float64{0, -9.81, 0}
	}, WithForceSink(sink), WithGeometry(geometry))

	anchor := addAnchor(w, mgl64.Vec3{0, 2, 0})
	body := addBody(w, mgl64.Vec3{0, 1, 0}, 2)
	bar := constraint.NewBar(body, anchor, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{0, 2, 0})
	if _, err := m.Add(bar); err != nil {
		t.Fatal(err)
	}

	const frames = 5
	for range frames {
		w.Step(frameStep)
	}

	if sink.bodies[body] != frames || sink.bodies[anchor] != frames {
		t.Errorf("bodies reported %v, want %d each", sink.bodies, frames)
	}
	values := sink.constraints[bar]
	if len(values) != frames {
		t.Fatalf("bar reported %d times, want %d", len(values), frames)
	}
	if math.Abs(values[frames-1]-2*9.81) > 1e-6 {
		t.Errorf("bar tension %g, want %g", values[frames-1], 2*9.81)
	}
	if geometry.pulled != 2*frames || geometry.pushed != 2*frames {
		t.Errorf("pulled %d pushed %d, want %d", geometry.pulled, geometry.pushed, 2*frames)
	}
	if math.Abs(geometry.height-1) > 1e-6 {
		t.Errorf("pushed height %g, want 1", geometry.height)
	}
}

func TestWorld_WorkersMatchSequential(t *testing.T) {
	run := func(workers int) []mgl64.Vec3 {
		w, m := newTestWorld(t, func(cfg *config.Config) {
			cfg.Gravity = [3]float64{0, -9.81, 0}
			cfg.Workers = workers
		})
		for _, c := range buildChain(w) {
			if _, err := m.Add(c); err != nil {
				t.Fatal(err)
			}
		}
		for range 20 {
			w.Step(frameStep)
		}

		positions := make([]mgl64.Vec3, len(w.Bodies))
		for i, body := range w.Bodies {
			positions[i] = body.Transform.Position
		}
		return positions
	}

	sequential := run(1)
	parallel := run(4)
	for i := range sequential {
		if sequential[i] != parallel[i] {
			t.Errorf("body %d: %v with one worker, %v with four", i, sequential[i], parallel[i])
		}
	}
}

func TestWorld_Energy(t *testing.T) {
	w, _ := newTestWorld(t, func(cfg *config.Config) {
		cfg.Gravity = [3]float64{0, -10, 0}
	})
	addAnchor(w, mgl64.Vec3{0, 100, 0})
	body := addBody(w, mgl64.Vec3{0, 3, 0}, 2)
	body.SetVelocity(mgl64.Vec3{1, 0, 0})

	if got, want := w.Energy(), 2*10*3+0.5*2*1.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("Energy() = %g, want %g", got, want)
	}
}
