package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeType represents the type of collision shape
type ShapeType int

const (
	ShapeTypeSphere ShapeType = iota
	ShapeTypeBox
	ShapeTypePlane
)

// ShapeInterface is the interface that all collision shapes must implement.
// Shapes are optional: bodies connected only through joints do not need one.
type ShapeInterface interface {
	Type() ShapeType
	// ComputeAABB calculates the axis-aligned bounding box for the shape
	// at the given transform
	ComputeAABB(transform Transform)
	GetAABB() AABB
	// ComputeMass calculates the mass of the shape given a density
	ComputeMass(density float64) float64
	ComputeInertia(mass float64) mgl64.Mat3
	// Support returns the farthest local point along a local direction
	Support(direction mgl64.Vec3) mgl64.Vec3
	// ContactPoints returns the local points of the feature facing a local
	// direction: one point for a sphere, a face for a box.
	ContactPoints(direction mgl64.Vec3) []mgl64.Vec3
}

// Box represents an oriented box collision shape
// The box is defined by its half-extents (half-width, half-height, half-depth)
type Box struct {
	HalfExtents mgl64.Vec3
	aabb        AABB
}

func (b *Box) Type() ShapeType {
	return ShapeTypeBox
}

func (b *Box) corners() [8]mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()
	return [8]mgl64.Vec3{
		{-hx, -hy, -hz},
		{+hx, -hy, -hz},
		{-hx, +hy, -hz},
		{+hx, +hy, -hz},
		{-hx, -hy, +hz},
		{+hx, -hy, +hz},
		{-hx, +hy, +hz},
		{+hx, +hy, +hz},
	}
}

func (b *Box) ComputeAABB(transform Transform) {
	corners := b.corners()

	min := transform.ToWorld(corners[0])
	max := min
	for i := 1; i < 8; i++ {
		c := transform.ToWorld(corners[i])
		for k := 0; k < 3; k++ {
			min[k] = math.Min(min[k], c[k])
			max[k] = math.Max(max[k], c[k])
		}
	}

	b.aabb = AABB{Min: min, Max: max}
}

func (b *Box) GetAABB() AABB {
	return b.aabb
}

// ComputeMass calculates mass data for the box
func (b *Box) ComputeMass(density float64) float64 {
	// Volume = 8 * hx * hy * hz (full dimensions are 2*halfExtents)
	volume := 8.0 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()

	return density * volume
}

// ComputeInertia returns the principal inertia I = m/12·(a² + b²) per axis
func (b *Box) ComputeInertia(mass float64) mgl64.Mat3 {
	x := b.HalfExtents.X() * 2
	y := b.HalfExtents.Y() * 2
	z := b.HalfExtents.Z() * 2

	factor := mass / 12.0
	return mgl64.Diag3(mgl64.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	})
}

func (b *Box) Support(direction mgl64.Vec3) mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()

	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	if direction.Z() < 0 {
		hz = -hz
	}

	return mgl64.Vec3{hx, hy, hz}
}

// ContactPoints returns the four corners of the face whose normal points the
// most along direction
func (b *Box) ContactPoints(direction mgl64.Vec3) []mgl64.Vec3 {
	axis, best := 0, 0.0
	for k := 0; k < 3; k++ {
		if a := math.Abs(direction[k]); a > best {
			axis, best = k, a
		}
	}

	corners := b.corners()
	points := make([]mgl64.Vec3, 0, 4)
	for _, c := range corners {
		if (c[axis] > 0) == (direction[axis] > 0) {
			points = append(points, c)
		}
	}

	return points
}

// Sphere represents a spherical collision shape
type Sphere struct {
	Radius float64
	aabb   AABB
}

func (s *Sphere) Type() ShapeType {
	return ShapeTypeSphere
}

// ComputeAABB calculates the axis-aligned bounding box for the sphere
func (s *Sphere) ComputeAABB(transform Transform) {
	// Sphere AABB is not affected by rotation, only by position
	radiusVec := mgl64.Vec3{s.Radius, s.Radius, s.Radius}

	s.aabb = AABB{
		Min: transform.Position.Sub(radiusVec),
		Max: transform.Position.Add(radiusVec),
	}
}

func (s *Sphere) GetAABB() AABB {
	return s.aabb
}

// ComputeMass calculates mass data for the sphere
func (s *Sphere) ComputeMass(density float64) float64 {
	// Volume of sphere = (4/3) * π * r³
	volume := (4.0 / 3.0) * math.Pi * math.Pow(s.Radius, 3)

	return density * volume
}

// ComputeInertia returns I = 2/5·m·r² on every axis
func (s *Sphere) ComputeInertia(mass float64) mgl64.Mat3 {
	i := (2.0 / 5.0) * mass * s.Radius * s.Radius

	return mgl64.Diag3(mgl64.Vec3{i, i, i})
}

func (s *Sphere) Support(direction mgl64.Vec3) mgl64.Vec3 {
	if direction.Len() == 0 {
		return mgl64.Vec3{}
	}
	return direction.Normalize().Mul(s.Radius)
}

func (s *Sphere) ContactPoints(direction mgl64.Vec3) []mgl64.Vec3 {
	return []mgl64.Vec3{s.Support(direction)}
}

// Plane represents an infinite plane collision shape
// The plane is defined by the equation: Normal · p + Distance = 0
// in the local space of its body, Normal being normalized.
type Plane struct {
	Normal   mgl64.Vec3
	Distance float64
	aabb     AABB
}

func (p *Plane) Type() ShapeType {
	return ShapeTypePlane
}

// WorldPlane returns the world normal n and offset d so that n·x + d = 0
// on the plane
func (p *Plane) WorldPlane(transform Transform) (mgl64.Vec3, float64) {
	normal := transform.Rotation.Rotate(p.Normal).Normalize()
	return normal, p.Distance - normal.Dot(transform.Position)
}

// ComputeAABB bounds a slab of the plane. Axes not aligned with the normal
// extend to infinity.
func (p *Plane) ComputeAABB(transform Transform) {
	const thickness = 1.0
	const infinity = 1e10

	normal, distance := p.WorldPlane(transform)
	planePoint := normal.Mul(-distance)

	lo := planePoint.Sub(normal.Mul(thickness))
	min := mgl64.Vec3{math.Min(lo[0], planePoint[0]), math.Min(lo[1], planePoint[1]), math.Min(lo[2], planePoint[2])}
	max := mgl64.Vec3{math.Max(lo[0], planePoint[0]), math.Max(lo[1], planePoint[1]), math.Max(lo[2], planePoint[2])}

	for k := 0; k < 3; k++ {
		if math.Abs(normal[k]) < 1.0 {
			min[k] = -infinity
			max[k] = infinity
		}
	}

	p.aabb = AABB{Min: min, Max: max}
}

func (p *Plane) GetAABB() AABB {
	return p.aabb
}

// ComputeMass calculates mass data for the plane
// Planes are always static with infinite mass
func (p *Plane) ComputeMass(density float64) float64 {
	return math.Inf(1)
}

func (p *Plane) ComputeInertia(mass float64) mgl64.Mat3 {
	return mgl64.Mat3{}
}

// Support of a plane is its point closest to the local origin
func (p *Plane) Support(direction mgl64.Vec3) mgl64.Vec3 {
	return p.Normal.Mul(-p.Distance)
}

// ContactPoints is empty: planes only ever act as the static side of a contact
func (p *Plane) ContactPoints(direction mgl64.Vec3) []mgl64.Vec3 {
	return nil
}

// TangentBasis returns two unit vectors orthogonal to normal and to each other
func TangentBasis(normal mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	var tangent1 mgl64.Vec3
	if math.Abs(normal.X()) > 0.9 {
		tangent1 = mgl64.Vec3{0, 1, 0}
	} else {
		tangent1 = mgl64.Vec3{1, 0, 0}
	}

	tangent1 = tangent1.Sub(normal.Mul(tangent1.Dot(normal))).Normalize()
	tangent2 := normal.Cross(tangent1).Normalize()

	return tangent1, tangent2
}
