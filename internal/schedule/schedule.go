// Package schedule provides single-slot deferred task execution.
//
// Each task kind occupies one slot per scheduler: rescheduling a kind
// replaces its pending run, and canceling a kind with no pending run is
// a no-op. Cancellation is best-effort against a run that is already
// firing, so task functions revalidate their preconditions under the
// owner's lock before acting.
package schedule

import (
	"sync"
	"time"
)

// Kind identifies a class of deferred work.
type Kind uint8

const (
	// KindActivate arms delayed overlay-layer activation.
	KindActivate Kind = iota
	// KindDeactivate arms delayed overlay-layer deactivation.
	KindDeactivate
	// KindSave arms a debounced settings save.
	KindSave

	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindActivate:
		return "activate"
	case KindDeactivate:
		return "deactivate"
	case KindSave:
		return "save"
	default:
		return "unknown"
	}
}

// Scheduler arms deferred work, one pending run per kind.
type Scheduler interface {
	// Reschedule arms fn to run after delay, replacing any pending run
	// of the same kind. A zero delay runs fn as soon as possible, still
	// asynchronously.
	Reschedule(kind Kind, delay time.Duration, fn func())

	// Cancel drops the pending run of kind, if any.
	Cancel(kind Kind)

	// Stop drops every pending run.
	Stop()
}

// TimerScheduler runs tasks on time.AfterFunc timers. A generation
// counter per slot keeps superseded callbacks from running their task
// function after a Reschedule or Cancel won the race.
type TimerScheduler struct {
	mu    sync.Mutex
	slots [kindCount]timerSlot
}

type timerSlot struct {
	timer *time.Timer
	gen   uint64
}

// NewTimer returns a TimerScheduler with no tasks armed.
func NewTimer() *TimerScheduler {
	return &TimerScheduler{}
}

// Reschedule implements Scheduler.
func (s *TimerScheduler) Reschedule(kind Kind, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := &s.slots[kind]
	if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.gen++
	gen := slot.gen
	slot.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current := s.slots[kind].gen == gen
		s.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(&s.slots[kind])
}

// Stop implements Scheduler.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		s.cancelLocked(&s.slots[i])
	}
}

func (s *TimerScheduler) cancelLocked(slot *timerSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.gen++
}
