package main

import (
	"fmt"
	"log"
	"os"

	"github.com/akmonengine/tether"
	"github.com/akmonengine/tether/actor"
	"github.com/akmonengine/tether/config"
	"github.com/akmonengine/tether/constraint"
	"github.com/go-gl/mathgl/mgl64"
)

// A three link pendulum hanging from an anchor, swinging above a floor on
// which a box is dropped. An optional YAML file overrides the defaults.
func main() {
	cfg := config.DefaultConfig()
	if len(os.Args) > 1 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	world, err := tether.NewWorld(cfg)
	if err != nil {
		log.Fatal(err)
	}
	manager, err := tether.NewManager(world)
	if err != nil {
		log.Fatal(err)
	}

	floor := actor.NewAnchor(actor.NewTransform(), &actor.Plane{Normal: mgl64.Vec3{0, 1, 0}})
	world.AddBody(floor)

	anchor := actor.NewAnchor(actor.NewTransformAt(mgl64.Vec3{0, 6, 0}, mgl64.QuatIdent()), nil)
	world.AddBody(anchor)

	previous := anchor
	pivot := anchor.Transform.Position
	for i := 0; i < 3; i++ {
		center := pivot.Add(mgl64.Vec3{0.5, 0, 0})
		link := actor.NewRigidBody(
			actor.NewTransformAt(center, mgl64.QuatIdent()),
			&actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.05, 0.05}},
			1.0,
		)
		world.AddBody(link)

		joint := constraint.NewHinge(link, previous, pivot, mgl64.Vec3{0, 0, 1})
		if _, err := manager.Add(joint); err != nil {
			log.Fatal(err)
		}
		previous = link
		pivot = center.Add(mgl64.Vec3{0.5, 0, 0})
	}

	box := actor.NewRigidBody(
		actor.NewTransformAt(mgl64.Vec3{-2, 1, 0}, mgl64.QuatIdent()),
		&actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}},
		2.0,
	)
	box.Material.Elasticity = 0.3
	world.AddBody(box)

	world.Subscribe(tether.SOLVE_METHOD_CHANGED, func(event tether.Event) {
		e := event.(tether.SolveMethodChangedEvent)
		fmt.Printf("solve method %s -> %s (%d)\n", e.From, e.To, e.Size)
	})

	const h = 0.01
	for frame := 0; frame <= 300; frame++ {
		world.Step(h)
		if frame%50 == 0 {
			stats := manager.Stats()
			fmt.Printf("t=%.2f tip=%v box=%v iterations=%d error=%.2e energy=%.4f\n",
				float64(frame)*h,
				previous.WorldPoint(mgl64.Vec3{0.5, 0, 0}),
				box.Transform.Position,
				stats.Iterations,
				stats.Error,
				world.Energy(),
			)
		}
	}
}
