// Package schedule provides deferred task execution with room-scoped
// cancellation. Respawns and phase-transition broadcasts run through here so
// that destroying a room cancels everything still pending for it.
package schedule

import (
	"sync"
	"time"
)

// CancelFunc cancels a single scheduled task. Safe to call multiple times
// and after the task has fired.
type CancelFunc func()

type task struct {
	timer *time.Timer
}

// Scheduler tracks pending timers grouped by room. All methods are safe for
// concurrent use.
//
// A fired task runs on its own goroutine, after it has been removed from the
// scheduler. Tasks MUST re-validate that their target room (and player,
// where relevant) still exists before mutating anything: cancellation
// guarantees a task will not fire after CancelRoom, but a task already past
// its timer races with the mutation that triggered the cancel.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]map[uint64]*task // roomID → taskID → task
	nextID  uint64
	stopped bool
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: make(map[string]map[uint64]*task),
	}
}

// After schedules fn to run once after d, tagged with roomID.
//
// Precondition: d > 0; fn must be non-nil.
// Postcondition: Returns a CancelFunc; fn runs unless cancelled (directly,
// via CancelRoom, or via Stop) before the delay elapses.
func (s *Scheduler) After(roomID string, d time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return func() {}
	}

	s.nextID++
	id := s.nextID

	t := &task{}
	t.timer = time.AfterFunc(d, func() {
		// Claim the task before running; a concurrent cancel that got
		// there first wins and fn never runs.
		if !s.remove(roomID, id) {
			return
		}
		fn()
	})

	if s.pending[roomID] == nil {
		s.pending[roomID] = make(map[uint64]*task)
	}
	s.pending[roomID][id] = t

	return func() {
		if s.remove(roomID, id) {
			t.timer.Stop()
		}
	}
}

// remove deletes the task from the pending map. Reports true when the
// caller claimed the task (it was still pending).
func (s *Scheduler) remove(roomID string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, ok := s.pending[roomID]
	if !ok {
		return false
	}
	if _, ok := tasks[id]; !ok {
		return false
	}
	delete(tasks, id)
	if len(tasks) == 0 {
		delete(s.pending, roomID)
	}
	return true
}

// CancelRoom cancels every task still pending for roomID. Called when the
// room is destroyed.
func (s *Scheduler) CancelRoom(roomID string) {
	s.mu.Lock()
	tasks := s.pending[roomID]
	delete(s.pending, roomID)
	s.mu.Unlock()

	for _, t := range tasks {
		t.timer.Stop()
	}
}

// PendingCount returns the number of tasks still pending for roomID.
func (s *Scheduler) PendingCount(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[roomID])
}

// Stop cancels all pending tasks and rejects new ones. Called at shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	all := s.pending
	s.pending = make(map[string]map[uint64]*task)
	s.stopped = true
	s.mu.Unlock()

	for _, tasks := range all {
		for _, t := range tasks {
			t.timer.Stop()
		}
	}
}
