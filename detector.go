package tether

import (
	"github.com/akmonengine/tether/actor"
	"github.com/akmonengine/tether/config"
	"github.com/akmonengine/tether/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

// Detector is the collision detection entry point. It runs once per frame
// before the constraints are solved, and again for each collision loop, and
// registers a collision constraint for every new contact through m.
type Detector interface {
	Detect(m *Manager, bodies []*actor.RigidBody) int
}

type contactKey struct {
	body, other *actor.RigidBody
	feature     int
}

// ContactDetector finds the contacts of convex bodies against static planes,
// and between spheres. A contact is created when the predicted position of a
// feature point ends the frame closer than Margin. Each feature creates at
// most one contact per frame.
type ContactDetector struct {
	Margin float64
	Bias   float64

	grid    *SpatialGrid
	indices []int
	seen    map[contactKey]struct{}
	frame   uint64
}

func NewContactDetector(cfg config.ContactConfig) *ContactDetector {
	return &ContactDetector{
		Margin: cfg.Margin,
		Bias:   cfg.Bias,
		grid:   NewSpatialGrid(cfg.CellSize, cfg.Cells),
		seen:   make(map[contactKey]struct{}),
	}
}

func (d *ContactDetector) Detect(m *Manager, bodies []*actor.RigidBody) int {
	if frame := m.Frame(); frame != d.frame {
		d.frame = frame
		clear(d.seen)
	}
	h := m.h

	created := 0
	var planes []*actor.RigidBody
	for _, body := range bodies {
		if _, ok := body.Shape.(*actor.Plane); ok && body.IsStatic() {
			planes = append(planes, body)
		}
	}

	d.grid.Clear()
	d.indices = d.indices[:0]
	for i, body := range bodies {
		if body.Shape == nil {
			continue
		}
		if _, ok := body.Shape.(*actor.Plane); ok {
			continue
		}
		swept := body.Shape.GetAABB().Sweep(body.Velocity.Mul(h), d.Margin)
		if !body.IsStatic() {
			for _, plane := range planes {
				created += d.collidePlane(m, body, plane, swept)
			}
		}
		if _, ok := body.Shape.(*actor.Sphere); ok {
			d.grid.Insert(len(d.indices), swept)
			d.indices = append(d.indices, i)
		}
	}

	for _, pair := range d.grid.Pairs() {
		created += d.collideSpheres(m, bodies[d.indices[pair.A]], bodies[d.indices[pair.B]])
	}

	return created
}

// collidePlane tests the feature of body facing the plane
func (d *ContactDetector) collidePlane(m *Manager, body, planeBody *actor.RigidBody, swept actor.AABB) int {
	plane := planeBody.Shape.(*actor.Plane)
	normal, distance := plane.WorldPlane(planeBody.Transform)
	if swept.PlaneDistance(normal, distance) > 0 {
		return 0
	}

	created := 0
	facing := body.Transform.InverseRotation.Rotate(normal.Mul(-1))
	for k, local := range body.Shape.ContactPoints(facing) {
		key := contactKey{body: body, other: planeBody, feature: k}
		if _, ok := d.seen[key]; ok {
			continue
		}
		if normal.Dot(body.PredictedPoint(local))+distance > d.Margin {
			continue
		}

		point := body.WorldPoint(local)
		depth := normal.Dot(point) + distance
		if d.add(m, body, planeBody, point, normal, depth) {
			d.seen[key] = struct{}{}
			created++
		}
	}

	return created
}

func (d *ContactDetector) collideSpheres(m *Manager, bodyA, bodyB *actor.RigidBody) int {
	if bodyA.IsStatic() && bodyB.IsStatic() {
		return 0
	}
	key := contactKey{body: bodyA, other: bodyB}
	if _, ok := d.seen[key]; ok {
		return 0
	}
	radiusA := bodyA.Shape.(*actor.Sphere).Radius
	radiusB := bodyB.Shape.(*actor.Sphere).Radius

	predicted := bodyA.PredictedPosition().Sub(bodyB.PredictedPosition()).Len()
	if predicted-radiusA-radiusB > d.Margin {
		return 0
	}

	between := bodyA.Transform.Position.Sub(bodyB.Transform.Position)
	dist := between.Len()
	if dist == 0 {
		return 0
	}
	normal := between.Mul(1 / dist)
	depth := dist - radiusA - radiusB
	point := bodyB.Transform.Position.Add(normal.Mul(radiusB + depth/2))

	if !d.add(m, bodyA, bodyB, point, normal, depth) {
		return 0
	}
	d.seen[key] = struct{}{}
	return 1
}

func (d *ContactDetector) add(m *Manager, bodyA, bodyB *actor.RigidBody, point, normal mgl64.Vec3, depth float64) bool {
	c := constraint.NewCollision(bodyA, bodyB, point, normal, depth)
	c.Bias = d.Bias
	if _, err := m.Add(c); err != nil {
		return false
	}
	m.events.emit(CollisionCreatedEvent{BodyA: bodyA, BodyB: bodyB, Collision: c})
	return true
}
