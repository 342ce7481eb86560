package timing

import (
	"container/heap"
)

// futureEvent is a ScheduledEvent waiting in a queue. The index is maintained
// by the heap and is -1 once the event left the queue.
type futureEvent struct {
	ScheduledEvent

	seq   uint64
	index int
	queue *futureEventQueue
}

// futureEventQueue orders events by time, then by insertion sequence.
type futureEventQueue struct {
	events futureEventHeap
}

func newFutureEventQueue() *futureEventQueue {
	q := &futureEventQueue{}
	q.events = make([]*futureEvent, 0)
	heap.Init(&q.events)

	return q
}

func (q *futureEventQueue) Push(evt *futureEvent) {
	evt.queue = q
	heap.Push(&q.events, evt)
}

func (q *futureEventQueue) Pop() *futureEvent {
	if q.events.Len() == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*futureEvent)
}

func (q *futureEventQueue) Peek() *futureEvent {
	if q.events.Len() == 0 {
		return nil
	}

	return q.events[0]
}

func (q *futureEventQueue) Len() int {
	return q.events.Len()
}

// Remove takes evt out of the queue. It reports false if evt is not queued
// here.
func (q *futureEventQueue) Remove(evt *futureEvent) bool {
	if evt.queue != q || evt.index < 0 || evt.index >= q.events.Len() {
		return false
	}

	if q.events[evt.index] != evt {
		return false
	}

	heap.Remove(&q.events, evt.index)

	return true
}

type futureEventHeap []*futureEvent

func (h futureEventHeap) Len() int { return len(h) }

func (h futureEventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}

	return h[i].seq < h[j].seq
}

func (h futureEventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *futureEventHeap) Push(x any) {
	evt := x.(*futureEvent)
	evt.index = len(*h)
	*h = append(*h, evt)
}

func (h *futureEventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	evt.index = -1
	*h = old[:n-1]

	return evt
}
