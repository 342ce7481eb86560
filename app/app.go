// Package app provides the applications that run on nodes: a periodic or
// on/off sender and a passive sink that can echo what it receives.
package app

import (
	"fmt"

	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
)

// State is the life-cycle state of an application.
type State int

// Application states.
const (
	StateIdle State = iota
	StateSending
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// An Application is a behaviour bound to a node that starts and stops at
// configured times.
type Application interface {
	timing.Handler

	Name() string
	Node() *network.Node
	State() State
	StartTime() timing.VTimeInSec

	// StopTime returns zero when the application never stops.
	StopTime() timing.VTimeInSec
}

type startEvent struct{}

type stopEvent struct{}

// Install schedules the start and stop of a.
func Install(engine timing.EventScheduler, a Application) error {
	_, err := engine.Schedule(timing.ScheduledEvent{
		Event:   &startEvent{},
		Time:    a.StartTime(),
		Handler: a,
	})
	if err != nil {
		return fmt.Errorf("installing %s: %w", a.Name(), err)
	}

	if a.StopTime() == 0 {
		return nil
	}

	_, err = engine.Schedule(timing.ScheduledEvent{
		Event:   &stopEvent{},
		Time:    a.StopTime(),
		Handler: a,
	})
	if err != nil {
		return fmt.Errorf("installing %s: %w", a.Name(), err)
	}

	return nil
}

func validateWindow(start, stop timing.VTimeInSec) error {
	if !start.IsValid() || !stop.IsValid() {
		return fmt.Errorf("%w: start %g and stop %g must be finite and non-negative",
			network.ErrInvalidConfiguration, float64(start), float64(stop))
	}

	if stop != 0 && stop <= start {
		return fmt.Errorf("%w: stop %s is not after start %s",
			network.ErrInvalidConfiguration, stop, start)
	}

	return nil
}
