package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler for tests. Armed tasks never run on their own;
// Fire runs a pending task inline so tests control exactly when
// deferred work happens.
type Manual struct {
	mu    sync.Mutex
	tasks map[Kind]manualTask
}

type manualTask struct {
	delay time.Duration
	fn    func()
}

// NewManual returns a Manual scheduler with no tasks armed.
func NewManual() *Manual {
	return &Manual{tasks: make(map[Kind]manualTask)}
}

// Reschedule implements Scheduler.
func (m *Manual) Reschedule(kind Kind, delay time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[kind] = manualTask{delay: delay, fn: fn}
}

// Cancel implements Scheduler.
func (m *Manual) Cancel(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, kind)
}

// Stop implements Scheduler.
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[Kind]manualTask)
}

// Pending reports whether a task of kind is armed.
func (m *Manual) Pending(kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[kind]
	return ok
}

// Delay returns the delay the pending task of kind was armed with.
func (m *Manual) Delay(kind Kind) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[kind]
	return task.delay, ok
}

// Fire runs the pending task of kind inline and clears its slot. It
// reports whether a task was armed.
func (m *Manual) Fire(kind Kind) bool {
	m.mu.Lock()
	task, ok := m.tasks[kind]
	delete(m.tasks, kind)
	m.mu.Unlock()

	if ok {
		task.fn()
	}
	return ok
}
