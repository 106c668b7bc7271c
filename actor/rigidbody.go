package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyType represents the type of rigid body
type BodyType int

const (
	// BodyTypeDynamic bodies are affected by forces, gravity, and restrictions
	// They have finite mass and can move freely
	BodyTypeDynamic BodyType = iota

	// BodyTypeStatic bodies are anchors: positioned frames with infinite mass
	// They are never integrated, only moved by the host (e.g., ground, walls)
	BodyTypeStatic
)

// Frame tells in which space a point argument is expressed
type Frame int

const (
	FrameWorld Frame = iota
	FrameLocal
)

type Material struct {
	mass       float64
	Elasticity float64 // 0= no rebound, 1= perfect restitution

	LinearDamping  float64 // 0.0 - 1.0, typical: 0.01
	AngularDamping float64 // 0.0 - 1.0, typical: 0.05
}

func (material Material) GetMass() float64 {
	return material.mass
}

// PointForce is a force applied at a point fixed on the body, kept so the
// resulting torque follows the body orientation.
type PointForce struct {
	Point mgl64.Vec3 // local
	Force mgl64.Vec3 // world
}

// State is the kinematic state of a body at one instant
type State struct {
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

type frameLoads struct {
	force          mgl64.Vec3
	torque         mgl64.Vec3
	impulse        mgl64.Vec3
	angularImpulse mgl64.Vec3
	pointForces    []PointForce
}

// RigidBody represents a rigid body in the physics simulation. Its state at
// the start of the frame is Transform/Velocity/AngularVelocity; the state at
// the end of the frame is predicted lazily from the loads applied so far.
type RigidBody struct {
	// Spatial properties
	Transform Transform

	// Linear motion
	Velocity mgl64.Vec3 // Linear velocity (m/s)

	// Angular motion
	AngularVelocity mgl64.Vec3 // Rotation speed (rad/s), world space
	// Principal inertia in local space
	InertiaLocal        mgl64.Mat3
	InverseInertiaLocal mgl64.Mat3

	// Physical properties
	Material Material
	BodyType BodyType // Dynamic or Static

	// Collision shape, optional
	Shape ShapeInterface

	singleAxis bool
	axis       mgl64.Vec3 // local unit axis

	// frame
	h          float64
	gravity    mgl64.Vec3
	integrator Integrator

	loads frameLoads

	predicted      State
	predictedValid bool

	cache derivativeCache

	testDepth int
	snapshot  frameLoads
	snapState State
	snapValid bool
}

// NewRigidBody creates a dynamic body of the given mass. The inertia comes from
// the shape, or is the one of a unit sphere when shape is nil.
func NewRigidBody(transform Transform, shape ShapeInterface, mass float64) *RigidBody {
	rb := &RigidBody{
		Transform:  normalizeTransform(transform),
		Shape:      shape,
		BodyType:   BodyTypeDynamic,
		Material:   Material{mass: mass},
		integrator: Symplectic,
	}

	if shape != nil {
		rb.SetInertia(shape.ComputeInertia(mass).Diag())
		shape.ComputeAABB(rb.Transform)
	} else {
		i := 0.4 * mass
		rb.SetInertia(mgl64.Vec3{i, i, i})
	}

	return rb
}

// NewRigidBodyFromDensity creates a dynamic body whose mass is computed from the shape volume
func NewRigidBodyFromDensity(transform Transform, shape ShapeInterface, density float64) *RigidBody {
	return NewRigidBody(transform, shape, shape.ComputeMass(density))
}

// NewAnchor creates a static frame usable as one end of a restriction
func NewAnchor(transform Transform, shape ShapeInterface) *RigidBody {
	rb := &RigidBody{
		Transform:  normalizeTransform(transform),
		Shape:      shape,
		BodyType:   BodyTypeStatic,
		Material:   Material{mass: math.Inf(1)},
		integrator: Symplectic,
	}
	if shape != nil {
		shape.ComputeAABB(rb.Transform)
	}

	return rb
}

func normalizeTransform(t Transform) Transform {
	if t.Rotation == (mgl64.Quat{}) {
		t.Rotation = mgl64.QuatIdent()
	}
	return NewTransformAt(t.Position, t.Rotation)
}

func (rb *RigidBody) IsStatic() bool {
	return rb.BodyType == BodyTypeStatic
}

// InverseMass is zero for anchors
func (rb *RigidBody) InverseMass() float64 {
	if rb.IsStatic() || rb.Material.mass <= 0 || math.IsInf(rb.Material.mass, 1) {
		return 0
	}
	return 1.0 / rb.Material.mass
}

// SetInertia sets the principal moments of inertia
func (rb *RigidBody) SetInertia(principal mgl64.Vec3) {
	rb.InertiaLocal = mgl64.Diag3(principal)
	var inv mgl64.Vec3
	for i := 0; i < 3; i++ {
		if principal[i] > 0 {
			inv[i] = 1.0 / principal[i]
		}
	}
	rb.InverseInertiaLocal = mgl64.Diag3(inv)
	rb.invalidate()
	rb.cache.valid = false
}

// SetSingleAxis restricts rotations to the given local axis
func (rb *RigidBody) SetSingleAxis(axis mgl64.Vec3) {
	if axis.Len() == 0 {
		rb.singleAxis = false
		return
	}
	rb.singleAxis = true
	rb.axis = axis.Normalize()
	rb.invalidate()
	rb.cache.valid = false
}

// SingleAxis returns the local rotation axis and whether one is configured
func (rb *RigidBody) SingleAxis() (mgl64.Vec3, bool) {
	return rb.axis, rb.singleAxis
}

// BeginFrame starts a frame of length h: loads are cleared and every cached
// quantity is invalidated. Gravity is applied as a central force.
func (rb *RigidBody) BeginFrame(h float64, gravity mgl64.Vec3, integrator Integrator) {
	rb.h = h
	rb.gravity = gravity
	rb.integrator = integrator
	rb.loads.force = mgl64.Vec3{}
	rb.loads.torque = mgl64.Vec3{}
	rb.loads.impulse = mgl64.Vec3{}
	rb.loads.angularImpulse = mgl64.Vec3{}
	rb.loads.pointForces = rb.loads.pointForces[:0]
	rb.testDepth = 0
	rb.cache.valid = false
	rb.invalidate()
}

// Step returns the length of the current frame
func (rb *RigidBody) Step() float64 {
	return rb.h
}

func (rb *RigidBody) invalidate() {
	rb.predictedValid = false
	rb.cache.predictedValid = false
}

// Advance commits the predicted state: the body moves to the end of the frame
func (rb *RigidBody) Advance() {
	if rb.IsStatic() {
		return
	}
	p := rb.Predicted()
	rb.Transform = NewTransformAt(p.Position, p.Rotation)
	rb.Velocity = p.Velocity
	rb.AngularVelocity = p.AngularVelocity
	if rb.Shape != nil {
		rb.Shape.ComputeAABB(rb.Transform)
	}
	rb.invalidate()
	rb.cache.valid = false
}

// Move places the body at position. The velocity is derived from the
// displacement over the current frame length.
func (rb *RigidBody) Move(position mgl64.Vec3) {
	if rb.h > 0 {
		rb.Velocity = position.Sub(rb.Transform.Position).Mul(1.0 / rb.h)
	}
	rb.Transform.Position = position
	if rb.Shape != nil {
		rb.Shape.ComputeAABB(rb.Transform)
	}
	rb.invalidate()
}

// SetRotation changes the orientation; point-force torques follow it
func (rb *RigidBody) SetRotation(rotation mgl64.Quat) {
	rb.Transform = NewTransformAt(rb.Transform.Position, rotation)
	if rb.Shape != nil {
		rb.Shape.ComputeAABB(rb.Transform)
	}
	rb.cache.valid = false
	rb.RecomputeTorque()
}

// SetTransform replaces position and orientation without touching velocities
func (rb *RigidBody) SetTransform(transform Transform) {
	rb.Transform = normalizeTransform(transform)
	if rb.Shape != nil {
		rb.Shape.ComputeAABB(rb.Transform)
	}
	rb.cache.valid = false
	rb.RecomputeTorque()
}

func (rb *RigidBody) SetVelocity(velocity mgl64.Vec3) {
	rb.Velocity = velocity
	rb.invalidate()
}

func (rb *RigidBody) SetAngularVelocity(angularVelocity mgl64.Vec3) {
	rb.AngularVelocity = rb.projectAxis(angularVelocity)
	rb.invalidate()
}

// RecomputeTorque re-derives the torque of recorded point forces from the
// current orientation
func (rb *RigidBody) RecomputeTorque() {
	rb.invalidate()
}

// ========== LOADS ==========

// ApplyForce adds a force acting at point, expressed in frame. Forces applied
// at the same local point are merged.
func (rb *RigidBody) ApplyForce(point mgl64.Vec3, frame Frame, force mgl64.Vec3) {
	if rb.IsStatic() {
		return
	}
	local := rb.toLocal(point, frame)
	rb.loads.force = rb.loads.force.Add(force)

	merged := false
	for i := range rb.loads.pointForces {
		if rb.loads.pointForces[i].Point == local {
			rb.loads.pointForces[i].Force = rb.loads.pointForces[i].Force.Add(force)
			merged = true
			break
		}
	}
	if !merged {
		rb.loads.pointForces = append(rb.loads.pointForces, PointForce{Point: local, Force: force})
	}
	rb.invalidate()
}

// ApplyCenterForce adds a force acting on the center of mass
func (rb *RigidBody) ApplyCenterForce(force mgl64.Vec3) {
	if rb.IsStatic() {
		return
	}
	rb.loads.force = rb.loads.force.Add(force)
	rb.invalidate()
}

// ApplyTorque adds a torque, projected on the rotation axis for single-axis bodies
func (rb *RigidBody) ApplyTorque(torque mgl64.Vec3) {
	if rb.IsStatic() {
		return
	}
	rb.loads.torque = rb.loads.torque.Add(rb.projectAxis(torque))
	rb.invalidate()
}

// ApplyImpulse changes the end-of-frame velocities immediately
func (rb *RigidBody) ApplyImpulse(point mgl64.Vec3, frame Frame, impulse mgl64.Vec3) {
	if rb.IsStatic() {
		return
	}
	arm := rb.Transform.Rotation.Rotate(rb.toLocal(point, frame))
	rb.loads.impulse = rb.loads.impulse.Add(impulse)
	rb.loads.angularImpulse = rb.loads.angularImpulse.Add(rb.projectAxis(arm.Cross(impulse)))
	rb.invalidate()
}

// ApplyCenterImpulse changes the linear velocity only
func (rb *RigidBody) ApplyCenterImpulse(impulse mgl64.Vec3) {
	if rb.IsStatic() {
		return
	}
	rb.loads.impulse = rb.loads.impulse.Add(impulse)
	rb.invalidate()
}

func (rb *RigidBody) ApplyAngularImpulse(impulse mgl64.Vec3) {
	if rb.IsStatic() {
		return
	}
	rb.loads.angularImpulse = rb.loads.angularImpulse.Add(rb.projectAxis(impulse))
	rb.invalidate()
}

// Force returns the total force applied this frame, gravity excluded
func (rb *RigidBody) Force() mgl64.Vec3 {
	return rb.loads.force
}

// Torque returns the total torque of this frame, point-force torques included
func (rb *RigidBody) Torque() mgl64.Vec3 {
	torque := rb.loads.torque
	for _, pf := range rb.loads.pointForces {
		arm := rb.Transform.Rotation.Rotate(pf.Point)
		torque = torque.Add(arm.Cross(pf.Force))
	}
	return rb.projectAxis(torque)
}

func (rb *RigidBody) Impulse() mgl64.Vec3 {
	return rb.loads.impulse
}

// PointForces lists the point forces of the frame
func (rb *RigidBody) PointForces() []PointForce {
	return rb.loads.pointForces
}

func (rb *RigidBody) toLocal(point mgl64.Vec3, frame Frame) mgl64.Vec3 {
	if frame == FrameLocal {
		return point
	}
	return rb.Transform.ToLocal(point)
}

func (rb *RigidBody) worldAxis() mgl64.Vec3 {
	return rb.Transform.Rotation.Rotate(rb.axis)
}

func (rb *RigidBody) projectAxis(v mgl64.Vec3) mgl64.Vec3 {
	if !rb.singleAxis {
		return v
	}
	a := rb.worldAxis()
	return a.Mul(a.Dot(v))
}

// ========== PREDICTION ==========

// Predicted returns the state at the end of the frame under the loads applied so far
func (rb *RigidBody) Predicted() State {
	if !rb.predictedValid {
		rb.predict()
	}
	return rb.predicted
}

func (rb *RigidBody) predict() {
	current := State{
		Position:        rb.Transform.Position,
		Rotation:        rb.Transform.Rotation,
		Velocity:        rb.Velocity,
		AngularVelocity: rb.AngularVelocity,
	}
	if rb.IsStatic() || rb.h <= 0 {
		rb.predicted = current
		rb.predictedValid = true
		return
	}

	h := rb.h
	beta := rb.integrator.Blend
	invMass := rb.InverseMass()

	// ========== LINEAR ==========
	acceleration := rb.gravity.Add(rb.loads.force.Mul(invMass))
	velocity := rb.Velocity.Mul(math.Exp(-rb.Material.LinearDamping * h))
	velocity = velocity.Add(acceleration.Mul(h)).Add(rb.loads.impulse.Mul(invMass))
	position := rb.Transform.Position.Add(rb.Velocity.Mul((1 - beta) * h)).Add(velocity.Mul(beta * h))

	// ========== ANGULAR ==========
	invInertia := rb.InverseInertiaWorld()
	angular := rb.AngularVelocity.Mul(math.Exp(-rb.Material.AngularDamping * h))
	angular = angular.Add(invInertia.Mul3x1(rb.Torque()).Mul(h))
	angular = angular.Add(invInertia.Mul3x1(rb.loads.angularImpulse))

	effective := rb.AngularVelocity.Mul(1 - beta).Add(angular.Mul(beta))
	omegaQuat := mgl64.Quat{V: effective, W: 0}
	qDot := omegaQuat.Mul(rb.Transform.Rotation).Scale(0.5)
	rotation := rb.Transform.Rotation.Add(qDot.Scale(h)).Normalize()

	rb.predicted = State{
		Position:        position,
		Rotation:        rotation,
		Velocity:        velocity,
		AngularVelocity: angular,
	}
	rb.predictedValid = true
}

// WorldPoint maps a local point with the current transform
func (rb *RigidBody) WorldPoint(local mgl64.Vec3) mgl64.Vec3 {
	return rb.Transform.ToWorld(local)
}

// WorldDirection rotates a local direction with the current orientation
func (rb *RigidBody) WorldDirection(local mgl64.Vec3) mgl64.Vec3 {
	return rb.Transform.Rotation.Rotate(local)
}

// PointVelocity is the current velocity of a local point
func (rb *RigidBody) PointVelocity(local mgl64.Vec3) mgl64.Vec3 {
	return rb.Velocity.Add(rb.AngularVelocity.Cross(rb.WorldDirection(local)))
}

func (rb *RigidBody) PredictedPosition() mgl64.Vec3 {
	return rb.Predicted().Position
}

func (rb *RigidBody) PredictedVelocity() mgl64.Vec3 {
	return rb.Predicted().Velocity
}

func (rb *RigidBody) PredictedRotation() mgl64.Quat {
	return rb.Predicted().Rotation
}

func (rb *RigidBody) PredictedAngularVelocity() mgl64.Vec3 {
	return rb.Predicted().AngularVelocity
}

// PredictedPoint maps a local point with the predicted transform
func (rb *RigidBody) PredictedPoint(local mgl64.Vec3) mgl64.Vec3 {
	p := rb.Predicted()
	return p.Rotation.Rotate(local).Add(p.Position)
}

// PredictedDirection rotates a local direction with the predicted orientation
func (rb *RigidBody) PredictedDirection(local mgl64.Vec3) mgl64.Vec3 {
	return rb.Predicted().Rotation.Rotate(local)
}

// PredictedPointVelocity is the predicted velocity of a local point
func (rb *RigidBody) PredictedPointVelocity(local mgl64.Vec3) mgl64.Vec3 {
	p := rb.Predicted()
	return p.Velocity.Add(p.AngularVelocity.Cross(p.Rotation.Rotate(local)))
}

// ========== INERTIA ==========

// InertiaWorld returns I_world = R * I_local * R^T
func (rb *RigidBody) InertiaWorld() mgl64.Mat3 {
	R := rb.Transform.Matrix()
	return R.Mul3(rb.InertiaLocal).Mul3(R.Transpose())
}

// InverseInertiaWorld returns I_world^(-1) = R * I_local^(-1) * R^T, or
// a·aᵀ/I_a for single-axis bodies. It is cached for the frame.
func (rb *RigidBody) InverseInertiaWorld() mgl64.Mat3 {
	if rb.IsStatic() {
		return mgl64.Mat3{}
	}
	if rb.cache.valid {
		return rb.cache.invInertia
	}

	var inv mgl64.Mat3
	if rb.singleAxis {
		moment := rb.axis.Dot(rb.InertiaLocal.Mul3x1(rb.axis))
		if moment > 0 {
			a := rb.worldAxis()
			inv = outer(a, a).Mul(1.0 / moment)
		}
	} else {
		R := rb.Transform.Matrix()
		inv = R.Mul3(rb.InverseInertiaLocal).Mul3(R.Transpose())
	}
	rb.cache.invInertia = inv
	rb.cache.valid = true

	return inv
}

// ========== ENERGY ==========

func (rb *RigidBody) kinetic(velocity, angular mgl64.Vec3) float64 {
	if rb.IsStatic() {
		return 0
	}
	linear := 0.5 * rb.Material.mass * velocity.Dot(velocity)
	rotational := 0.5 * angular.Dot(rb.InertiaWorld().Mul3x1(angular))
	return linear + rotational
}

// KineticEnergy at the start of the frame
func (rb *RigidBody) KineticEnergy() float64 {
	return rb.kinetic(rb.Velocity, rb.AngularVelocity)
}

// PredictedKineticEnergy at the end of the frame
func (rb *RigidBody) PredictedKineticEnergy() float64 {
	p := rb.Predicted()
	return rb.kinetic(p.Velocity, p.AngularVelocity)
}

// PostImpulseKineticEnergy is the energy right after this frame's impulses,
// before forces act
func (rb *RigidBody) PostImpulseKineticEnergy() float64 {
	velocity := rb.Velocity.Add(rb.loads.impulse.Mul(rb.InverseMass()))
	angular := rb.AngularVelocity.Add(rb.InverseInertiaWorld().Mul3x1(rb.loads.angularImpulse))
	return rb.kinetic(velocity, angular)
}

// PotentialEnergy in the uniform field gravity, zero at the origin
func (rb *RigidBody) PotentialEnergy(gravity mgl64.Vec3) float64 {
	if rb.IsStatic() {
		return 0
	}
	return -rb.Material.mass * gravity.Dot(rb.Transform.Position)
}

func (rb *RigidBody) PredictedPotentialEnergy(gravity mgl64.Vec3) float64 {
	if rb.IsStatic() {
		return 0
	}
	return -rb.Material.mass * gravity.Dot(rb.PredictedPosition())
}

// ========== TESTING ==========

// BeginTest snapshots the loads and the predicted state so that probing loads
// can be applied and later undone by EndTest. Calls nest.
func (rb *RigidBody) BeginTest() {
	if rb.testDepth == 0 {
		rb.snapshot.force = rb.loads.force
		rb.snapshot.torque = rb.loads.torque
		rb.snapshot.impulse = rb.loads.impulse
		rb.snapshot.angularImpulse = rb.loads.angularImpulse
		rb.snapshot.pointForces = append(rb.snapshot.pointForces[:0], rb.loads.pointForces...)
		rb.snapState = rb.predicted
		rb.snapValid = rb.predictedValid
	}
	rb.testDepth++
}

// EndTest restores what the outermost BeginTest saved
func (rb *RigidBody) EndTest() {
	if rb.testDepth == 0 {
		return
	}
	rb.testDepth--
	if rb.testDepth > 0 {
		return
	}
	rb.loads.force = rb.snapshot.force
	rb.loads.torque = rb.snapshot.torque
	rb.loads.impulse = rb.snapshot.impulse
	rb.loads.angularImpulse = rb.snapshot.angularImpulse
	rb.loads.pointForces = append(rb.loads.pointForces[:0], rb.snapshot.pointForces...)
	rb.predicted = rb.snapState
	rb.predictedValid = rb.snapValid
	rb.cache.predictedValid = false
}

// Testing reports whether a BeginTest is pending
func (rb *RigidBody) Testing() bool {
	return rb.testDepth > 0
}
