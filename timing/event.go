package timing

import "github.com/sarchlab/netsim/hooking"

// Handler processes events of various types.
// Events are plain data structs (no interface required).
// Handlers use type switching to handle different event types:
//
//	func (l *Link) Handle(event any) error {
//	    switch e := event.(type) {
//	    case *txDoneEvent:
//	        // ...
//	    case *deliverEvent:
//	        // ...
//	    default:
//	        return fmt.Errorf("unknown event type: %T", event)
//	    }
//	    return nil
//	}
type Handler interface {
	Handle(event any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(event any) error

// Handle calls f(event).
func (f HandlerFunc) Handle(event any) error {
	return f(event)
}

// TimeTeller exposes the current simulation time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// EventScheduler schedules and cancels events in the simulation timeline.
type EventScheduler interface {
	TimeTeller

	// Schedule registers an event to be handled in the future.
	Schedule(event ScheduledEvent) (EventHandle, error)

	// Cancel removes a pending event. Cancelling an event that already fired
	// or was already cancelled does nothing.
	Cancel(handle EventHandle)
}

// A SimulationEndHandler is a handler that is called after the simulation
// ends.
type SimulationEndHandler interface {
	Handle(now VTimeInSec)
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run processes events until the queue is empty.
	Run() error

	// RunUntil processes events whose time is before the horizon.
	RunUntil(horizon VTimeInSec) error

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation.
	Continue()

	// Pending returns the number of events that have not fired yet.
	Pending() int

	// RegisterSimulationEndHandler registers a handler that perform some
	// actions after the simulation is finished.
	RegisterSimulationEndHandler(handler SimulationEndHandler)

	// Finished invokes all the registered SimulationEndHandler.
	Finished()
}

// ScheduledEvent is the engine-facing wrapper for user-defined events.
// It holds the metadata needed by the scheduler while keeping the payload as
// plain data.
type ScheduledEvent struct {
	// Event is the data payload to be delivered to the handler.
	Event any

	// Time is when the event should be processed.
	Time VTimeInSec

	// Handler is the component that will process this event.
	Handler Handler

	// IsSecondary indicates if this event should be processed after
	// all primary events at the same time.
	IsSecondary bool
}

// EventHandle identifies a scheduled event so that it can be cancelled. The
// zero value refers to no event.
type EventHandle struct {
	evt *futureEvent
}

// IsZero reports whether the handle refers to no event.
func (h EventHandle) IsZero() bool {
	return h.evt == nil
}

// Pending reports whether the event is still waiting in the queue.
func (h EventHandle) Pending() bool {
	return h.evt != nil && h.evt.index >= 0
}

// Time returns the time the event was scheduled for.
func (h EventHandle) Time() VTimeInSec {
	if h.evt == nil {
		return 0
	}

	return h.evt.Time
}

// funcEvent is the payload of events created by ScheduleFunc.
type funcEvent struct {
	action func()
}

type funcHandler struct{}

func (funcHandler) Handle(event any) error {
	event.(*funcEvent).action()
	return nil
}
