package core

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Task represents a scheduled main-loop job
type Task struct {
	Name     string
	WakeTime time.Time
	Handler  func(t *Task) uint8
	Next     *Task
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is the cooperative main loop: tasks run to completion in wake
// order, nothing preempts them.
type Scheduler struct {
	clock    clock.Clock
	taskList *Task
}

// NewScheduler creates an empty scheduler driven by c.
func NewScheduler(c clock.Clock) *Scheduler {
	return &Scheduler{clock: c}
}

// Now returns the scheduler's clock time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// ScheduleTask adds a task to the schedule
func (s *Scheduler) ScheduleTask(t *Task) {
	// Insert task in sorted order
	s.insertTask(t)
}

// Every schedules fn to run each period, starting one period from now.
// The handler's error result is passed to onErr when it is non-nil.
func (s *Scheduler) Every(name string, period time.Duration, fn func() error, onErr func(name string, err error)) *Task {
	t := &Task{Name: name, WakeTime: s.clock.Now().Add(period)}
	t.Handler = func(t *Task) uint8 {
		if err := fn(); err != nil && onErr != nil {
			onErr(t.Name, err)
		}
		t.WakeTime = t.WakeTime.Add(period)
		if now := s.clock.Now(); t.WakeTime.Before(now) {
			// Fell behind - skip missed periods instead of bursting
			t.WakeTime = now.Add(period)
		}
		return SF_RESCHEDULE
	}
	s.ScheduleTask(t)
	return t
}

// insertTask inserts a task in sorted order by WakeTime
func (s *Scheduler) insertTask(t *Task) {
	if s.taskList == nil || t.WakeTime.Before(s.taskList.WakeTime) {
		t.Next = s.taskList
		s.taskList = t
		return
	}

	current := s.taskList
	for current.Next != nil && !t.WakeTime.Before(current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Dispatch runs every task whose WakeTime has passed and returns how many ran.
func (s *Scheduler) Dispatch() int {
	now := s.clock.Now()
	ran := 0

	for s.taskList != nil && !s.taskList.WakeTime.After(now) {
		task := s.taskList
		s.taskList = task.Next
		task.Next = nil // Clear Next pointer to avoid circular references

		result := task.Handler(task)
		ran++

		// Reschedule if requested
		if result == SF_RESCHEDULE {
			s.insertTask(task)
		}
	}
	return ran
}

// NextWake returns the earliest pending wake time.
func (s *Scheduler) NextWake() (time.Time, bool) {
	if s.taskList == nil {
		return time.Time{}, false
	}
	return s.taskList.WakeTime, true
}
