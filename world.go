package tether

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/akmonengine/tether/actor"
	"github.com/akmonengine/tether/config"
	"github.com/akmonengine/tether/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

const DEFAULT_WORKERS = 1

var ErrNoIntegrator = errors.New("tether: no valid integrator")

// World is the simulation context: the bodies, the forces acting on them and
// the constraint manager. One call to Step advances everything by one frame.
type World struct {
	// List of all rigid bodies in the world
	Bodies []*actor.RigidBody
	// Gravity acceleration (m/s², or N/kg)
	Gravity    mgl64.Vec3
	Integrator actor.Integrator
	Workers    int

	Events Events

	config      config.Config
	logger      *slog.Logger
	controllers []Controller
	manager     *Manager
	detector    Detector
	sink        ForceSink
	geometry    Geometry
}

type Option func(w *World)

func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// WithForceSink reports the loads of every body and constraint once per frame
func WithForceSink(sink ForceSink) Option {
	return func(w *World) {
		w.sink = sink
	}
}

// WithGeometry keeps the bodies in sync with a host representation
func WithGeometry(geometry Geometry) Option {
	return func(w *World) {
		w.geometry = geometry
	}
}

// WithDetector replaces the default contact detector, nil disables detection
func WithDetector(detector Detector) Option {
	return func(w *World) {
		w.detector = detector
	}
}

// NewWorld creates a simulation context from cfg, the defaults when nil
func NewWorld(cfg *config.Config, opts ...Option) (*World, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	integrator, err := actor.ParseIntegrator(cfg.Integrator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIntegrator, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &World{
		Gravity:    cfg.GravityVec(),
		Integrator: integrator,
		Workers:    cfg.Workers,
		Events:     NewEvents(),
		config:     *cfg,
		sink:       NopForceSink{},
		detector:   NewContactDetector(cfg.Contact),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = config.NewLogger(os.Stderr, cfg.LogLevel)
	}
	if w.sink == nil {
		w.sink = NopForceSink{}
	}

	return w, nil
}

// Manager returns the constraint manager, nil until NewManager is called
func (w *World) Manager() *Manager {
	return w.manager
}

func (w *World) Logger() *slog.Logger {
	return w.logger
}

// Subscribe adds a listener for an event type
func (w *World) Subscribe(eventType EventType, listener EventListener) {
	w.Events.Subscribe(eventType, listener)
}

// AddBody adds a rigid body to the world
func (w *World) AddBody(body *actor.RigidBody) {
	w.Bodies = append(w.Bodies, body)
}

// RemoveBody removes a rigid body from the world, along with every
// constraint attached to it
func (w *World) RemoveBody(body *actor.RigidBody) {
	k := -1
	for i, b := range w.Bodies {
		if b == body {
			k = i
			break
		}
	}

	if k != -1 {
		w.Bodies = append(w.Bodies[:k], w.Bodies[k+1:]...)
	}

	if w.manager == nil {
		return
	}
	for i := range w.manager.slots {
		c := w.manager.slots[i].constraint
		if c != nil && c.Base().Involves(body) {
			_ = w.manager.Remove(c.Base().Handle())
		}
	}
}

func (w *World) AddController(controller Controller) {
	w.controllers = append(w.controllers, controller)
}

// RemoveController may be called from a controller during Step
func (w *World) RemoveController(controller Controller) {
	w.controllers = slices.DeleteFunc(w.controllers, func(c Controller) bool {
		return c == controller
	})
}

// Step advances the world by h seconds
func (w *World) Step(h float64) {
	w.Workers = max(DEFAULT_WORKERS, w.Workers)

	if w.geometry != nil {
		for _, body := range w.Bodies {
			w.geometry.Pull(body)
		}
	}

	// Phase 1: frame start, gravity
	task(w.Workers, w.Bodies, func(body *actor.RigidBody) {
		body.BeginFrame(h, w.Gravity, w.Integrator)
	})

	// Phase 2: external forces, over a snapshot so controllers may remove themselves
	for _, controller := range slices.Clone(w.controllers) {
		controller.ApplyForces(h)
	}

	// Phase 3: collision detection and constraints
	if w.manager != nil {
		var detect func() int
		if w.detector != nil {
			detect = func() int {
				return w.detector.Detect(w.manager, w.Bodies)
			}
		}
		w.manager.Step(h, detect)
	}

	for _, body := range w.Bodies {
		w.sink.ReportBody(body)
	}

	// Phase 4: commit positions and velocities
	task(w.Workers, w.Bodies, func(body *actor.RigidBody) {
		body.Advance()
	})

	if w.geometry != nil {
		for _, body := range w.Bodies {
			w.geometry.Push(body)
		}
	}

	w.Events.flush()
}

// Energy is the kinetic plus potential energy of the dynamic bodies
func (w *World) Energy() float64 {
	energy := 0.0
	for _, body := range w.Bodies {
		if body.IsStatic() {
			continue
		}
		energy += body.KineticEnergy() + body.PotentialEnergy(w.Gravity)
	}
	return energy
}

// ForceSink receives the loads of the frame, after the constraints are
// solved and before the bodies move
type ForceSink interface {
	ReportBody(body *actor.RigidBody)
	ReportConstraint(c constraint.Constraint)
}

type NopForceSink struct{}

func (NopForceSink) ReportBody(body *actor.RigidBody) {}

func (NopForceSink) ReportConstraint(c constraint.Constraint) {}

// Geometry is the host side representation of the bodies. Pull copies the
// host pose into the body before the frame, Push copies the new pose back.
type Geometry interface {
	Pull(body *actor.RigidBody)
	Push(body *actor.RigidBody)
}
