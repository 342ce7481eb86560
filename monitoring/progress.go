package monitoring

import (
	"encoding/json"
	"sync"
	"time"
)

// A ProgressBar follows a run towards its horizon. Finished and Total are in
// whatever unit the owner picks; simulations use milliseconds of simulated
// time. InProgress holds the number of events still queued.
type ProgressBar struct {
	mu         sync.Mutex
	id         string
	name       string
	startTime  time.Time
	total      uint64
	finished   uint64
	inProgress uint64
}

func newProgressBar(id, name string, total uint64) *ProgressBar {
	return &ProgressBar{
		id:        id,
		name:      name,
		startTime: time.Now(),
		total:     total,
	}
}

// ID returns the identifier used by the progress API.
func (b *ProgressBar) ID() string { return b.id }

// Name returns the name given at creation.
func (b *ProgressBar) Name() string { return b.name }

// Finished returns the finished amount.
func (b *ProgressBar) Finished() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.finished
}

// SetFinished overwrites the finished amount, capped at the total.
func (b *ProgressBar) SetFinished(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.finished = min(amount, b.total)
}

// SetInProgress overwrites the in-progress amount.
func (b *ProgressBar) SetInProgress(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inProgress = amount
}

// ProgressSnapshot is the JSON form of a ProgressBar.
type ProgressSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// Snapshot copies the current state of the bar.
func (b *ProgressBar) Snapshot() ProgressSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return ProgressSnapshot{
		ID:         b.id,
		Name:       b.name,
		StartTime:  b.startTime,
		Total:      b.total,
		Finished:   b.finished,
		InProgress: b.inProgress,
	}
}

// MarshalJSON encodes a snapshot of the bar.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Snapshot())
}
