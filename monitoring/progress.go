package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar tracks how many items of a run are finished or in progress.
// It is updated by the simulation and read by the monitor.
type ProgressBar struct {
	lock sync.Mutex

	id         string
	name       string
	startTime  time.Time
	total      uint64
	finished   uint64
	inProgress uint64
}

// ID returns the unique id of the bar.
func (b *ProgressBar) ID() string {
	return b.id
}

// Name returns what the bar counts.
func (b *ProgressBar) Name() string {
	return b.name
}

// Finished returns the number of finished items.
func (b *ProgressBar) Finished() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.finished
}

// InProgress returns the number of items being processed.
func (b *ProgressBar) InProgress() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.inProgress
}

// IncrementInProgress adds items being processed.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.inProgress += amount
}

// IncrementFinished adds finished items.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.finished += amount
}

// MoveInProgressToFinished marks items in progress as finished. At most the
// items in progress are moved.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	amount = min(amount, b.inProgress)

	b.inProgress -= amount
	b.finished += amount
}

type progressSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

func (b *ProgressBar) snapshot() progressSnapshot {
	b.lock.Lock()
	defer b.lock.Unlock()

	return progressSnapshot{
		ID:         b.id,
		Name:       b.name,
		StartTime:  b.startTime,
		Total:      b.total,
		Finished:   b.finished,
		InProgress: b.inProgress,
	}
}
