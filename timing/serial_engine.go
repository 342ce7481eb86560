package timing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sarchlab/netsim/hooking"
)

// SerialEngine processes scheduled events one after another in time order.
// Events with the same time run in the order they were scheduled; secondary
// events run after all primary events of the same time.
type SerialEngine struct {
	*hooking.HookableBase

	timeLock sync.RWMutex
	now      VTimeInSec

	queueLock      sync.Mutex
	nextSeq        uint64
	queue          *futureEventQueue
	secondaryQueue *futureEventQueue

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex

	simulationEndHandlers []SimulationEndHandler
}

var _ Engine = (*SerialEngine)(nil)

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{
		HookableBase:   hooking.NewHookableBase(),
		queue:          newFutureEventQueue(),
		secondaryQueue: newFutureEventQueue(),
	}
}

// Schedule registers an event to be handled in the future.
func (e *SerialEngine) Schedule(evt ScheduledEvent) (EventHandle, error) {
	if !evt.Time.IsValid() {
		return EventHandle{}, fmt.Errorf(
			"%w: evt %s @ %g", ErrInvalidSchedule,
			reflect.TypeOf(evt.Event), float64(evt.Time),
		)
	}

	if evt.Handler == nil {
		return EventHandle{}, fmt.Errorf(
			"%w: evt %s has no handler",
			ErrInvalidSchedule, reflect.TypeOf(evt.Event),
		)
	}

	now := e.readNow()
	if evt.Time < now {
		return EventHandle{}, fmt.Errorf(
			"%w: cannot schedule evt %s @ %.10f, now %.10f",
			ErrCausality, reflect.TypeOf(evt.Event), evt.Time, now,
		)
	}

	fe := &futureEvent{ScheduledEvent: evt}

	e.queueLock.Lock()
	fe.seq = e.nextSeq
	e.nextSeq++
	if evt.IsSecondary {
		e.secondaryQueue.Push(fe)
	} else {
		e.queue.Push(fe)
	}
	e.queueLock.Unlock()

	return EventHandle{evt: fe}, nil
}

// ScheduleFunc schedules fn to run at time t.
func (e *SerialEngine) ScheduleFunc(t VTimeInSec, fn func()) (EventHandle, error) {
	return e.Schedule(ScheduledEvent{
		Event:   &funcEvent{action: fn},
		Time:    t,
		Handler: funcHandler{},
	})
}

// Cancel removes a pending event from the queue. Stale or zero handles are
// ignored.
func (e *SerialEngine) Cancel(handle EventHandle) {
	if handle.evt == nil {
		return
	}

	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	if !e.queue.Remove(handle.evt) {
		e.secondaryQueue.Remove(handle.evt)
	}
}

// Pending returns the number of events that have not fired yet.
func (e *SerialEngine) Pending() int {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	return e.queue.Len() + e.secondaryQueue.Len()
}

func (e *SerialEngine) readNow() VTimeInSec {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTimeInSec) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Run processes all scheduled events until the queue is empty.
func (e *SerialEngine) Run() error {
	return e.run(VTimeInSec(0), false)
}

// RunUntil processes scheduled events whose time is strictly before horizon.
// When it stops because of the horizon, the current time is set to the
// horizon and the remaining events stay queued.
func (e *SerialEngine) RunUntil(horizon VTimeInSec) error {
	if !horizon.IsValid() {
		return fmt.Errorf("%w: horizon %g", ErrInvalidSchedule, float64(horizon))
	}

	return e.run(horizon, true)
}

func (e *SerialEngine) run(horizon VTimeInSec, bounded bool) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		if bounded && e.readNow() >= horizon {
			return nil
		}

		e.pauseLock.Lock()

		evt := e.nextEvent(horizon, bounded)
		if evt == nil {
			if bounded && e.Pending() > 0 {
				e.writeNow(horizon)
			}

			e.pauseLock.Unlock()

			return nil
		}

		err := e.dispatch(evt)

		e.pauseLock.Unlock()

		if err != nil {
			return err
		}
	}
}

func (e *SerialEngine) dispatch(evt *futureEvent) error {
	now := e.readNow()
	if evt.Time < now {
		return fmt.Errorf(
			"%w: cannot run evt %s @ %.10f, now %.10f",
			ErrCausality, reflect.TypeOf(evt.Event), evt.Time, now,
		)
	}

	e.writeNow(evt.Time)

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   &evt.ScheduledEvent,
	}
	e.InvokeHook(hookCtx)

	err := evt.Handler.Handle(evt.Event)

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)

	if err != nil {
		return fmt.Errorf("timing: handling evt %s @ %.10f: %w",
			reflect.TypeOf(evt.Event), evt.Time, err)
	}

	return nil
}

// nextEvent pops the next event to run, or returns nil if the queue is empty
// or the next event is at or beyond the horizon.
func (e *SerialEngine) nextEvent(horizon VTimeInSec, bounded bool) *futureEvent {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	primary := e.queue.Peek()
	secondary := e.secondaryQueue.Peek()

	var q *futureEventQueue
	var next *futureEvent

	switch {
	case primary == nil && secondary == nil:
		return nil
	case secondary == nil:
		q, next = e.queue, primary
	case primary == nil:
		q, next = e.secondaryQueue, secondary
	case primary.Time <= secondary.Time:
		q, next = e.queue, primary
	default:
		q, next = e.secondaryQueue, secondary
	}

	if bounded && next.Time >= horizon {
		return nil
	}

	return q.Pop()
}

// Pause prevents the engine from dispatching more events until Continue is
// called.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue resumes event processing after a Pause.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// CurrentTime returns the time of the most recently executed event.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	return e.readNow()
}

// RegisterSimulationEndHandler registers a handler to be called by Finished.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.simulationEndHandlers = append(e.simulationEndHandlers, handler)
}

// Finished should be called after the simulation ends. This function calls
// all the registered SimulationEndHandler.
func (e *SerialEngine) Finished() {
	now := e.readNow()
	for _, h := range e.simulationEndHandlers {
		h.Handle(now)
	}
}
