package actor

import "github.com/go-gl/mathgl/mgl64"

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// Overlaps checks if two AABBs overlap
func (a AABB) Overlaps(other AABB) bool {
	// AABBs overlap if they overlap on all three axes
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// Sweep grows the box so that it also covers itself translated by motion,
// then pads it by margin on every side
func (a AABB) Sweep(motion mgl64.Vec3, margin float64) AABB {
	out := a
	for k := 0; k < 3; k++ {
		if motion[k] < 0 {
			out.Min[k] += motion[k]
		} else {
			out.Max[k] += motion[k]
		}
		out.Min[k] -= margin
		out.Max[k] += margin
	}
	return out
}

// PlaneDistance is the smallest signed distance n·x + d over the corners of the box
func (a AABB) PlaneDistance(normal mgl64.Vec3, d float64) float64 {
	var corner mgl64.Vec3
	for k := 0; k < 3; k++ {
		if normal[k] >= 0 {
			corner[k] = a.Min[k]
		} else {
			corner[k] = a.Max[k]
		}
	}
	return normal.Dot(corner) + d
}
