package core

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestSchedulerOrder(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var order []string
	mk := func(name string, after time.Duration) *Task {
		return &Task{
			Name:     name,
			WakeTime: mock.Now().Add(after),
			Handler: func(t *Task) uint8 {
				order = append(order, t.Name)
				return SF_DONE
			},
		}
	}
	s.ScheduleTask(mk("c", 30*time.Millisecond))
	s.ScheduleTask(mk("a", 10*time.Millisecond))
	s.ScheduleTask(mk("b", 20*time.Millisecond))

	test.That(t, s.Dispatch(), test.ShouldEqual, 0)
	wake, ok := s.NextWake()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, wake, test.ShouldEqual, mock.Now().Add(10*time.Millisecond))

	mock.Add(25 * time.Millisecond)
	test.That(t, s.Dispatch(), test.ShouldEqual, 2)
	mock.Add(10 * time.Millisecond)
	test.That(t, s.Dispatch(), test.ShouldEqual, 1)
	test.That(t, order, test.ShouldResemble, []string{"a", "b", "c"})

	_, ok = s.NextWake()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestSchedulerEvery(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	runs := 0
	var failed []string
	s.Every("tick", 10*time.Millisecond, func() error {
		runs++
		if runs == 2 {
			return errors.New("boom")
		}
		return nil
	}, func(name string, err error) {
		failed = append(failed, name+": "+err.Error())
	})

	for i := 0; i < 3; i++ {
		mock.Add(10 * time.Millisecond)
		s.Dispatch()
	}
	test.That(t, runs, test.ShouldEqual, 3)
	test.That(t, failed, test.ShouldResemble, []string{"tick: boom"})

	// A long stall runs the task once, not once per missed period
	mock.Add(100 * time.Millisecond)
	test.That(t, s.Dispatch(), test.ShouldEqual, 1)
	test.That(t, runs, test.ShouldEqual, 4)
}
