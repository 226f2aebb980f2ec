package core

import "sync"

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
	queued   bool
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is the single hardware timer shared by everything that needs a
// periodic callback. Handlers run with the scheduler locked and interrupts
// masked, so they must not block or call back into the scheduler.
type Scheduler struct {
	mu    sync.Mutex
	list  *Timer
	now   uint32
	freq  uint32
	fired uint32
}

// NewScheduler creates a scheduler whose ticks run at freq Hz
func NewScheduler(freq uint32) *Scheduler {
	if freq == 0 {
		freq = TimerFreq
	}
	return &Scheduler{freq: freq}
}

// Freq returns the tick frequency in Hz
func (s *Scheduler) Freq() uint32 {
	return s.freq
}

// Now returns the last time the scheduler was dispatched at
func (s *Scheduler) Now() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Fired returns the number of handler invocations so far
func (s *Scheduler) Fired() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Schedule adds a timer. A timer that is already queued is moved to its new
// wake time.
func (s *Scheduler) Schedule(t *Timer) {
	s.mu.Lock()
	state := disableInterrupts()
	if t.queued {
		s.remove(t)
	}
	s.insert(t)
	restoreInterrupts(state)
	s.mu.Unlock()
}

// ScheduleIn schedules t to fire the given number of ticks after Now
func (s *Scheduler) ScheduleIn(t *Timer, ticks uint32) {
	s.mu.Lock()
	t.WakeTime = s.now + ticks
	s.mu.Unlock()
	s.Schedule(t)
}

// Cancel removes t from the schedule; it reports whether t was queued
func (s *Scheduler) Cancel(t *Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if !t.queued {
		return false
	}
	s.remove(t)
	return true
}

// Pending reports whether any timer is queued
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list != nil
}

// NextWake returns the wake time of the earliest queued timer
func (s *Scheduler) NextWake() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.list == nil {
		return 0, false
	}
	return s.list.WakeTime, true
}

// Do runs fn with the scheduler locked and interrupts masked, so no handler
// runs concurrently. fn must be short.
func (s *Scheduler) Do(fn func()) {
	s.mu.Lock()
	state := disableInterrupts()
	fn()
	restoreInterrupts(state)
	s.mu.Unlock()
}

// Dispatch runs every timer due at or before now and returns how many fired
func (s *Scheduler) Dispatch(now uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.now = now
	n := 0
	for s.list != nil && !timerAfter(s.list.WakeTime, now) {
		timer := s.list
		s.list = timer.Next
		timer.Next = nil
		timer.queued = false

		n++
		s.fired++
		if timer.Handler(timer) == SF_RESCHEDULE {
			s.insert(timer)
		}
	}
	return n
}

// Step advances the clock to the next queued wake time and dispatches it.
// It returns false when nothing is queued.
func (s *Scheduler) Step() bool {
	wake, ok := s.NextWake()
	if !ok {
		return false
	}
	s.Dispatch(wake)
	return true
}

// insertTimer inserts a timer in sorted order by WakeTime
// Must be called with lock held
func (s *Scheduler) insert(t *Timer) {
	t.queued = true
	if s.list == nil || timerAfter(s.list.WakeTime, t.WakeTime) {
		t.Next = s.list
		s.list = t
		return
	}

	current := s.list
	for current.Next != nil && !timerAfter(current.Next.WakeTime, t.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Must be called with lock held
func (s *Scheduler) remove(t *Timer) {
	if s.list == t {
		s.list = t.Next
	} else {
		for cur := s.list; cur != nil; cur = cur.Next {
			if cur.Next == t {
				cur.Next = t.Next
				break
			}
		}
	}
	t.Next = nil
	t.queued = false
}

// timerAfter reports whether a is later than b, tolerating 32-bit wrap
func timerAfter(a, b uint32) bool {
	return int32(a-b) > 0
}
