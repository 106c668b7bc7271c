package tether

import (
	"github.com/akmonengine/tether/actor"
	"github.com/akmonengine/tether/constraint"
	"github.com/akmonengine/tether/linalg"
)

const (
	CONSTRAINT_ACTIVATED EventType = iota
	CONSTRAINT_DEACTIVATED
	CONSTRAINT_BROKEN
	COLLISION_CREATED
	SOLVE_METHOD_CHANGED
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// ConstraintActivatedEvent is sent when a constraint joins the solved set
type ConstraintActivatedEvent struct {
	Handle     constraint.Handle
	Constraint constraint.Constraint
}

func (e ConstraintActivatedEvent) Type() EventType { return CONSTRAINT_ACTIVATED }

// ConstraintDeactivatedEvent is sent when a constraint is taken out of the
// solved set on request
type ConstraintDeactivatedEvent struct {
	Handle     constraint.Handle
	Constraint constraint.Constraint
}

func (e ConstraintDeactivatedEvent) Type() EventType { return CONSTRAINT_DEACTIVATED }

// ConstraintBrokenEvent is sent when a constraint deactivated itself because
// its restriction value would cross a limit
type ConstraintBrokenEvent struct {
	Handle     constraint.Handle
	Constraint constraint.Constraint
	Dim        int
	Value      float64
	Limit      float64
}

func (e ConstraintBrokenEvent) Type() EventType { return CONSTRAINT_BROKEN }

type CollisionCreatedEvent struct {
	BodyA, BodyB *actor.RigidBody
	Collision    *constraint.Collision
}

func (e CollisionCreatedEvent) Type() EventType { return COLLISION_CREATED }

// SolveMethodChangedEvent is sent when the Jacobian solve escalated
type SolveMethodChangedEvent struct {
	From, To linalg.SolveMethod
	Size     int
}

func (e SolveMethodChangedEvent) Type() EventType { return SOLVE_METHOD_CHANGED }

// EventListener - callback for events
type EventListener func(event Event)

// Events buffers what happened during a frame and sends it to the listeners
// once the frame is complete
type Events struct {
	// Listeners by event type
	listeners map[EventType][]EventListener

	// Event buffer to send at flush
	buffer []Event
}

func NewEvents() Events {
	return Events{
		listeners: make(map[EventType][]EventListener),
		buffer:    make([]Event, 0, 64),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	if e.listeners == nil {
		e.listeners = make(map[EventType][]EventListener)
	}
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

func (e *Events) emit(event Event) {
	e.buffer = append(e.buffer, event)
}

// Pending returns the number of buffered events
func (e *Events) Pending() int {
	return len(e.buffer)
}

// flush sends all buffered events and clears the buffer
func (e *Events) flush() {
	for _, event := range e.buffer {
		if listeners, ok := e.listeners[event.Type()]; ok {
			for _, listener := range listeners {
				listener(event)
			}
		}
	}
	clear(e.buffer)
	e.buffer = e.buffer[:0]
}
