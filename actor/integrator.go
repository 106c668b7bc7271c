package actor

import (
	"errors"
	"fmt"
)

var ErrUnknownIntegrator = errors.New("actor: unknown integrator")

// Integrator advances a body over one frame. Velocities are updated first from
// the frame's forces; positions then move with a blend of the old and the new
// velocity: x' = x + h·((1-Blend)·v + Blend·v').
type Integrator struct {
	Name  string
	Blend float64
}

var (
	// Symplectic is the semi-implicit Euler scheme, positions use v'
	Symplectic = Integrator{Name: "symplectic", Blend: 1}
	// Midpoint moves positions with the average of v and v'
	Midpoint = Integrator{Name: "midpoint", Blend: 0.5}
)

// ParseIntegrator returns the integrator registered under name
func ParseIntegrator(name string) (Integrator, error) {
	switch name {
	case Symplectic.Name:
		return Symplectic, nil
	case Midpoint.Name:
		return Midpoint, nil
	}
	return Integrator{}, fmt.Errorf("%w: %q", ErrUnknownIntegrator, name)
}

// Valid reports whether the integrator moves positions at all. A zero blend
// would make predicted positions insensitive to forces.
func (i Integrator) Valid() bool {
	return i.Blend > 0 && i.Blend <= 1
}
