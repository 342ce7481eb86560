package network

import "errors"

var (
	// ErrInvalidConfiguration reports a bad rate, delay, mask or topology
	// detected while the simulation is being built.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrCollision is returned by a shared medium with collision detection
	// when a node starts transmitting while the channel is busy.
	ErrCollision = errors.New("collision on shared medium")

	// ErrNoRoute is returned when a node has no route towards a destination.
	ErrNoRoute = errors.New("no route to destination")

	// ErrNotAttached is returned when a node transmits on a link it is not
	// attached to.
	ErrNotAttached = errors.New("node not attached to link")

	// ErrInvalidFrame is returned for frames with a negative payload size.
	ErrInvalidFrame = errors.New("invalid frame")
)
