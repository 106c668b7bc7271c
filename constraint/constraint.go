package constraint

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrNilBody        = errors.New("constraint: nil body")
	ErrSameBody       = errors.New("constraint: both ends on the same body")
	ErrZeroDirection  = errors.New("constraint: zero direction vector")
	ErrNotInitialized = errors.New("constraint: not initialized")
	ErrAlreadyActive  = errors.New("constraint: already active")
)

// Constraint is a restriction between two bodies. Concrete types describe
// their geometry through Error, Probes and Effects; everything else (warm
// start, limits, Jacobian blocks, empirical probing) is shared and lives on
// Base and in the package functions.
type Constraint interface {
	Base() *Base
	// Init computes the local geometry from the current body state
	Init() error
	// Error writes the current violation, one entry per dimension
	Error(out []float64)
	// Probes lists the measured quantities with the gradient of the error
	// with respect to each of them, at the current predicted state
	Probes() []Probe
	// Effects maps the restriction value onto loads. It is fixed for a frame.
	Effects() []Effect
	// NewFrame re-anchors the constraint on the current body state
	NewFrame(h float64)
	PostProcessing()
}

// Probe is one measured quantity of a constraint: the predicted position,
// velocity or direction of a local point of Body. Gradient holds dC_i/dX for
// each dimension i of the constraint, X being the measured world vector.
type Probe struct {
	Body     *actor.RigidBody
	Point    mgl64.Vec3
	Measure  actor.Measure
	Gradient []mgl64.Vec3
}

// Effect is one load a constraint applies: value R produces the load
// Σ R_k·Dirs[k] of the given kind on Body at the local Point.
type Effect struct {
	Body  *actor.RigidBody
	Point mgl64.Vec3
	Kind  actor.Excitation
	Dirs  []mgl64.Vec3
}

// Softness pins the velocity terms of the error on or off, or lets the
// oscillation detector decide
type Softness int

const (
	SoftAuto Softness = iota
	SoftOn
	SoftOff
)

func (s Softness) String() string {
	switch s {
	case SoftAuto:
		return "auto"
	case SoftOn:
		return "soft"
	case SoftOff:
		return "hard"
	}
	return fmt.Sprintf("Softness(%d)", int(s))
}

// ParseSoftness accepts "auto", "soft" and "hard"
func ParseSoftness(name string) (Softness, error) {
	switch name {
	case "auto":
		return SoftAuto, nil
	case "soft":
		return SoftOn, nil
	case "hard":
		return SoftOff, nil
	}
	return SoftAuto, fmt.Errorf("constraint: unknown velocity terms mode %q", name)
}

// DefaultMaxOsc is the number of frames in a row used by the duty cycle
const DefaultMaxOsc = 4

// State is the lifecycle state of a constraint
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateActive
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handle is a stable reference to a constraint slot of a registry. A zero
// handle never refers to a live constraint.
type Handle struct {
	index      uint32
	generation uint32
}

func MakeHandle(index, generation uint32) Handle {
	return Handle{index: index, generation: generation}
}

func (h Handle) Index() uint32 {
	return h.index
}

func (h Handle) Generation() uint32 {
	return h.generation
}

func (h Handle) IsZero() bool {
	return h.generation == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.index, h.generation)
}

// Registry is the part of the solver a companion may drive
type Registry interface {
	Activate(c Constraint) error
	Deactivate(c Constraint)
}

// Monitor is a companion that watches a constraint while it is inactive and
// may reactivate it under a different regime
type Monitor interface {
	// Watch runs once per frame before the constraints are solved
	Watch(reg Registry) error
	// Handoff is called after the constraint deactivated itself on a limit
	Handoff(c Constraint)
}

// Base is the state shared by every constraint
type Base struct {
	Name         string
	BodyA, BodyB *actor.RigidBody

	dim       int
	value     []float64
	prev      []float64
	change    []float64
	delta     []float64
	reported  []float64
	maxForce  []float64
	minForce  []float64
	stiffness float64

	state    State
	testing  int
	applied  bool
	violated int

	softness Softness
	soft     bool
	nrOsc    int
	nrCalm   int
	maxOsc   int

	h            float64
	offset       int
	handle       Handle
	monitor      Monitor
	deactivation int
	disposable   bool

	rows   []mgl64.Vec3
	logger *slog.Logger
}

// setup sizes every per-dimension buffer
func (b *Base) setup(name string, dim int, bodyA, bodyB *actor.RigidBody) {
	b.Name = name
	b.BodyA, b.BodyB = bodyA, bodyB
	b.dim = dim
	b.value = make([]float64, dim)
	b.prev = make([]float64, dim)
	b.change = make([]float64, dim)
	b.delta = make([]float64, dim)
	b.reported = make([]float64, dim)
	b.maxForce = make([]float64, dim)
	b.minForce = make([]float64, dim)
	for i := range dim {
		b.maxForce[i] = math.Inf(1)
		b.minForce[i] = math.Inf(-1)
	}
	b.rows = make([]mgl64.Vec3, dim)
	b.maxOsc = DefaultMaxOsc
	b.violated = -1
}

// validate checks the two ends
func (b *Base) validate() error {
	if b.BodyA == nil || b.BodyB == nil {
		return fmt.Errorf("%s: %w", b.Name, ErrNilBody)
	}
	if b.BodyA == b.BodyB {
		return fmt.Errorf("%s: %w", b.Name, ErrSameBody)
	}
	return nil
}

// ready marks a successful Init
func (b *Base) ready() error {
	if b.state == StateUninitialized {
		b.state = StateInitialized
	}
	return nil
}

func (b *Base) Dimension() int {
	return b.dim
}

// Value returns the restriction value. The slice is owned by the constraint.
func (b *Base) Value() []float64 {
	return b.value
}

// Reported is the value the constraint held at the end of the last frame
func (b *Base) Reported() []float64 {
	return b.reported
}

func (b *Base) State() State {
	return b.state
}

func (b *Base) Active() bool {
	return b.state == StateActive
}

func (b *Base) Initialized() bool {
	return b.state != StateUninitialized
}

func (b *Base) Testing() bool {
	return b.testing > 0
}

// Soft reports whether velocity terms are currently part of the error
func (b *Base) Soft() bool {
	return b.soft
}

func (b *Base) Softness() Softness {
	return b.softness
}

func (b *Base) SetSoftness(s Softness) {
	b.softness = s
	switch s {
	case SoftOn:
		b.soft = true
	case SoftOff:
		b.soft = false
	}
}

// SetMaxOsc sets the length of the oscillation duty cycle
func (b *Base) SetMaxOsc(n int) {
	if n > 0 {
		b.maxOsc = n
	}
}

// SetStiffness scales the linear extrapolation of the warm start. Zero
// reuses the previous value as is.
func (b *Base) SetStiffness(k float64) {
	b.stiffness = k
}

func (b *Base) Stiffness() float64 {
	return b.stiffness
}

// SetForceLimit bounds every dimension to [-limit, limit]
func (b *Base) SetForceLimit(limit float64) {
	for i := range b.dim {
		b.maxForce[i] = math.Abs(limit)
		b.minForce[i] = -math.Abs(limit)
	}
}

func (b *Base) SetMaxForce(dim int, limit float64) {
	b.maxForce[dim] = limit
}

func (b *Base) SetMinForce(dim int, limit float64) {
	b.minForce[dim] = limit
}

func (b *Base) MaxForce(dim int) float64 {
	return b.maxForce[dim]
}

func (b *Base) MinForce(dim int) float64 {
	return b.minForce[dim]
}

// Violated is the dimension that broke the last limit check, or -1
func (b *Base) Violated() int {
	return b.violated
}

func (b *Base) SetMonitor(m Monitor) {
	b.monitor = m
}

func (b *Base) Monitor() Monitor {
	return b.monitor
}

// Offset is the row of the first dimension in the stacked system
func (b *Base) Offset() int {
	return b.offset
}

func (b *Base) SetOffset(offset int) {
	b.offset = offset
}

func (b *Base) Handle() Handle {
	return b.handle
}

func (b *Base) SetHandle(h Handle) {
	b.handle = h
}

// Deactivations counts how many times the constraint left the active set
func (b *Base) Deactivations() int {
	return b.deactivation
}

// Disposable constraints are removed by the solver once inactive
func (b *Base) Disposable() bool {
	return b.disposable
}

func (b *Base) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

func (b *Base) Logger() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

// Involves reports whether body is one of the two ends
func (b *Base) Involves(body *actor.RigidBody) bool {
	return body != nil && (body == b.BodyA || body == b.BodyB)
}

// MarkActive enters the active state with a zero restriction value
func (b *Base) MarkActive() error {
	switch b.state {
	case StateUninitialized:
		return fmt.Errorf("%s: %w", b.Name, ErrNotInitialized)
	case StateActive:
		return fmt.Errorf("%s: %w", b.Name, ErrAlreadyActive)
	}
	b.state = StateActive
	b.resetValue()
	b.nrOsc, b.nrCalm = 0, 0
	if b.softness == SoftAuto {
		b.soft = false
	}
	return nil
}

// MarkInactive leaves the active state. It returns false if the constraint
// was not active, so callers can count transitions exactly once.
func (b *Base) MarkInactive() bool {
	if b.state != StateActive {
		return false
	}
	b.state = StateInactive
	b.deactivation++
	return true
}

func (b *Base) resetValue() {
	clear(b.value)
	clear(b.prev)
	clear(b.change)
	b.applied = false
	b.violated = -1
}

// pointError is the predicted world position of a local point, looking half
// a step further along its predicted velocity when velocity terms are on
func (b *Base) pointError(body *actor.RigidBody, local mgl64.Vec3) mgl64.Vec3 {
	p := body.PredictedPoint(local)
	if b.soft {
		p = p.Add(body.PredictedPointVelocity(local).Mul(b.h / 2))
	}
	return p
}

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
	zero  = mgl64.Vec3{}
)

// skewRows returns the rows of scale·[v]×
func skewRows(v mgl64.Vec3, scale float64) [3]mgl64.Vec3 {
	v = v.Mul(scale)
	return [3]mgl64.Vec3{
		{0, -v[2], v[1]},
		{v[2], 0, -v[0]},
		{-v[1], v[0], 0},
	}
}
