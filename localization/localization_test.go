package localization

import (
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

var testConfig = Config{DistancePerRotationMM: 1.12, PulsesPerRotation: 12}

func newTestLocalization(t *testing.T, snap Snapshot, ok bool) *Localization {
	t.Helper()
	l, err := New(testConfig, snap, ok, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	return l
}

func pulses(l *Localization, m Movement, n int) {
	l.SetMovement(m)
	for i := 0; i < n; i++ {
		l.CallbackPulseCount()
	}
}

// calibrate drives a fresh instance through the front and back endstops.
func calibrate(t *testing.T, l *Localization, backPulses int) {
	t.Helper()
	l.Trigger()
	changed, err := l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)

	changed, err = l.Calibrate(EndstopEvents{Front: true, AbsPosMM: 100})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)

	pulses(l, l.Movement(), backPulses)
	changed, err = l.Calibrate(EndstopEvents{Back: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)
}

func TestNewRejectsGeometry(t *testing.T) {
	_, err := New(Config{}, Snapshot{}, false, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCalibrationProtocol(t *testing.T) {
	l := newTestLocalization(t, Snapshot{}, false)
	test.That(t, l.State(), test.ShouldEqual, Init)

	// Nothing happens without the trigger
	changed, err := l.Calibrate(EndstopEvents{Front: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeFalse)

	l.Trigger()
	changed, err = l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, l.State(), test.ShouldEqual, ApproachFront)
	test.That(t, l.Movement(), test.ShouldEqual, Forward)
	test.That(t, l.Triggered(), test.ShouldBeFalse)

	pulses(l, Forward, 40)
	changed, err = l.Calibrate(EndstopEvents{Front: true, AbsPosMM: 120})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, l.State(), test.ShouldEqual, ApproachBack)
	test.That(t, l.Movement(), test.ShouldEqual, Backward)
	test.That(t, l.PulseCount(), test.ShouldEqual, int32(0))
	test.That(t, l.StartPosAbsMM(), test.ShouldEqual, int32(120))

	// Back endstop after 300 pulses at 1.12/12 mm per pulse
	pulses(l, Backward, 300)
	changed, err = l.Calibrate(EndstopEvents{Back: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, l.State(), test.ShouldEqual, ApproachCenter)
	test.That(t, l.EndPosMM(), test.ShouldEqual, int32(14))
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(14))
	test.That(t, l.DesiredPosMM(), test.ShouldEqual, int32(0))
	test.That(t, l.Movement(), test.ShouldEqual, Stop)
	test.That(t, l.Localized(), test.ShouldBeFalse)

	// Still away from center
	changed, err = l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeFalse)

	pulses(l, Forward, 150)
	test.That(t, l.UpdatePosition(), test.ShouldEqual, PositionUpdated)
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(0))
	changed, err = l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, l.State(), test.ShouldEqual, SetCenterPos)

	test.That(t, l.SetCenter(), test.ShouldBeNil)
	test.That(t, l.State(), test.ShouldEqual, CenterPosSet)
	test.That(t, l.Localized(), test.ShouldBeTrue)
	test.That(t, l.CurrentPosMM()-l.CenterPosMM(), test.ShouldEqual, int32(0))
}

func TestApproachCenterSettlesInDeadBand(t *testing.T) {
	l := newTestLocalization(t, Snapshot{}, false)
	calibrate(t, l, 300)

	// Stopped 2 mm short with a 3 mm brake path
	pulses(l, Forward, 128)
	l.SetMovement(Stop)
	l.UpdatePosition()
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(2))
	l.SetBrakePath(3)

	changed, err := l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, l.State(), test.ShouldEqual, SetCenterPos)
}

func TestSetCenter(t *testing.T) {
	t.Run("before centering stage", func(t *testing.T) {
		for _, s := range []State{Init, ApproachFront, ApproachBack, ApproachCenter} {
			l := newTestLocalization(t, Snapshot{}, false)
			l.state = s
			err := l.SetCenter()
			test.That(t, errors.Is(err, ErrNotTriggered), test.ShouldBeTrue)
			test.That(t, l.Localized(), test.ShouldBeFalse)
		}
	})

	t.Run("re-center", func(t *testing.T) {
		l := newTestLocalization(t, Snapshot{State: CenterPosSet, PulseCount: 150, EndPosMM: 14}, true)
		pulses(l, Backward, 30)
		test.That(t, l.UpdatePosition(), test.ShouldEqual, PositionUpdated)
		test.That(t, l.SetCenter(), test.ShouldBeNil)
		test.That(t, l.CenterPosMM(), test.ShouldEqual, l.CurrentPosMM())
		test.That(t, l.CenterPosMM(), test.ShouldEqual, int32(3))
		test.That(t, l.DesiredPosMM(), test.ShouldEqual, int32(3))
	})
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		partial bool
		legal   bool
	}{
		{Init, ApproachFront, false, true},
		{ApproachFront, ApproachBack, false, true},
		{ApproachFront, CenterPosSet, true, true},
		{ApproachBack, ApproachCenter, false, true},
		{ApproachCenter, SetCenterPos, false, true},
		{SetCenterPos, CenterPosSet, false, true},
		{CenterPosSet, CenterPosSet, false, true},
		{Init, Init, false, true},
		{ApproachFront, Init, false, true},
		{ApproachBack, Init, false, true},
		{ApproachCenter, Init, false, true},
		{SetCenterPos, Init, false, true},
		{CenterPosSet, Init, false, true},

		{ApproachFront, CenterPosSet, false, false},
		{Init, ApproachBack, false, false},
		{Init, CenterPosSet, false, false},
		{ApproachBack, ApproachFront, false, false},
		{ApproachCenter, ApproachBack, false, false},
		{ApproachBack, SetCenterPos, false, false},
		{SetCenterPos, ApproachCenter, false, false},
		{CenterPosSet, SetCenterPos, false, false},
		{CenterPosSet, ApproachFront, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			l := newTestLocalization(t, Snapshot{}, false)
			l.state = tc.from
			l.partial = tc.partial

			err := l.transition(tc.to)
			if tc.legal {
				test.That(t, err, test.ShouldBeNil)
				test.That(t, l.State(), test.ShouldEqual, tc.to)
				return
			}
			test.That(t, errors.Is(err, ErrIllegalTransition), test.ShouldBeTrue)
			test.That(t, l.State(), test.ShouldEqual, tc.from)
		})
	}
}

func TestPulseSignConvention(t *testing.T) {
	tests := []struct {
		movement Movement
		delta    int32
	}{
		{Backward, 1},
		{Forward, -1},
		{Stop, 0},
	}
	for _, tc := range tests {
		t.Run(tc.movement.String(), func(t *testing.T) {
			l := newTestLocalization(t, Snapshot{}, false)
			l.pulseCount.Store(10)
			l.SetMovement(tc.movement)
			l.CallbackPulseCount()
			test.That(t, l.PulseCount(), test.ShouldEqual, 10+tc.delta)
		})
	}
}

func TestUpdatePositionRetained(t *testing.T) {
	l := newTestLocalization(t, Snapshot{}, false)
	calibrate(t, l, 300)

	previous := l.CurrentPosMM()
	for p := int32(300); p >= 0; p-- {
		l.pulseCount.Store(p)
		expected := l.computePosition()
		res := l.UpdatePosition()
		if expected == previous {
			test.That(t, res, test.ShouldEqual, PositionRetained)
		} else {
			test.That(t, res, test.ShouldEqual, PositionUpdated)
		}
		test.That(t, l.UpdatePosition(), test.ShouldEqual, PositionRetained)
		previous = l.CurrentPosMM()
	}
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(-14))
}

func TestUpdatePositionInactiveBeforeApproachCenter(t *testing.T) {
	l := newTestLocalization(t, Snapshot{}, false)
	l.pulseCount.Store(500)
	test.That(t, l.UpdatePosition(), test.ShouldEqual, PositionRetained)
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(0))
}

func TestUpdatePositionClampsWhenLocalized(t *testing.T) {
	l := newTestLocalization(t, Snapshot{State: CenterPosSet, PulseCount: 150, EndPosMM: 14}, true)
	l.pulseCount.Store(600)
	test.That(t, l.UpdatePosition(), test.ShouldEqual, PositionUpdated)
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(14))
	l.pulseCount.Store(-100)
	test.That(t, l.UpdatePosition(), test.ShouldEqual, PositionUpdated)
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(-14))
}

func TestNextMovementDeadBand(t *testing.T) {
	l := newTestLocalization(t, Snapshot{}, false)
	l.SetBrakePath(5)

	test.That(t, l.NextMovement(6), test.ShouldEqual, Backward)
	test.That(t, l.NextMovement(-6), test.ShouldEqual, Forward)
	for target := int32(-5); target <= 5; target++ {
		test.That(t, l.NextMovement(target), test.ShouldEqual, Stop)
	}
}

func TestDesiredPositionQueue(t *testing.T) {
	t.Run("opposing target is deferred", func(t *testing.T) {
		l := newTestLocalization(t, Snapshot{}, false)
		l.SetMovement(Forward)
		l.SetDesiredPos(-10)

		queued := l.SetDesiredPosQueued(8, Backward)
		test.That(t, queued, test.ShouldBeTrue)
		test.That(t, l.DesiredPosMM(), test.ShouldEqual, int32(-10))
		q, ok := l.QueuedPosMM()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, q, test.ShouldEqual, int32(8))

		// Reported stop promotes it
		l.SetMovement(Stop)
		test.That(t, l.ProgressQueue(), test.ShouldBeTrue)
		test.That(t, l.DesiredPosMM(), test.ShouldEqual, int32(8))
		_, ok = l.QueuedPosMM()
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, l.ProgressQueue(), test.ShouldBeFalse)
	})

	t.Run("same direction applies and clears queue", func(t *testing.T) {
		l := newTestLocalization(t, Snapshot{}, false)
		l.SetMovement(Forward)
		l.SetDesiredPosQueued(9, Backward)

		queued := l.SetDesiredPosQueued(-12, Forward)
		test.That(t, queued, test.ShouldBeFalse)
		test.That(t, l.DesiredPosMM(), test.ShouldEqual, int32(-12))
		_, ok := l.QueuedPosMM()
		test.That(t, ok, test.ShouldBeFalse)
	})

	t.Run("stopped applies immediately", func(t *testing.T) {
		l := newTestLocalization(t, Snapshot{}, false)
		queued := l.SetDesiredPosQueued(4, Backward)
		test.That(t, queued, test.ShouldBeFalse)
		test.That(t, l.DesiredPosMM(), test.ShouldEqual, int32(4))
	})
}

func TestRecovery(t *testing.T) {
	t.Run("unreadable snapshot", func(t *testing.T) {
		l := newTestLocalization(t, Snapshot{State: CenterPosSet, EndPosMM: 14}, false)
		test.That(t, l.Recovery(), test.ShouldEqual, RecoveryReset)
		test.That(t, l.Localized(), test.ShouldBeFalse)
		test.That(t, l.State(), test.ShouldEqual, Init)
	})

	t.Run("never localized unless centered", func(t *testing.T) {
		for _, s := range []State{Init, ApproachFront, ApproachBack, ApproachCenter, SetCenterPos} {
			for _, end := range []int32{0, 14} {
				l := newTestLocalization(t, Snapshot{State: s, PulseCount: 77, EndPosMM: end}, true)
				test.That(t, l.Localized(), test.ShouldBeFalse)
				test.That(t, l.State(), test.ShouldEqual, Init)
			}
		}
	})

	t.Run("complete", func(t *testing.T) {
		l := newTestLocalization(t, Snapshot{
			State: CenterPosSet, PulseCount: 200, EndPosMM: 14, CenterPosMM: 1, StartPosAbsMM: 90,
		}, true)
		test.That(t, l.Recovery(), test.ShouldEqual, RecoveryComplete)
		test.That(t, l.Localized(), test.ShouldBeTrue)
		test.That(t, l.State(), test.ShouldEqual, CenterPosSet)
		// round(200 * 1.12 / 12) - 14 = 19 - 14
		test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(5))
		test.That(t, l.DesiredPosMM(), test.ShouldEqual, int32(5))
		test.That(t, l.StartPosAbsMM(), test.ShouldEqual, int32(90))
	})
}

func TestPartialRecovery(t *testing.T) {
	l := newTestLocalization(t, Snapshot{
		State: ApproachFront, PulseCount: -20, EndPosMM: 14, CenterPosMM: 2, StartPosAbsMM: 100,
	}, true)
	test.That(t, l.Recovery(), test.ShouldEqual, RecoveryPartial)
	test.That(t, l.PartialPending(), test.ShouldBeTrue)
	test.That(t, l.Localized(), test.ShouldBeFalse)
	test.That(t, l.State(), test.ShouldEqual, Init)

	l.Trigger()
	_, err := l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.State(), test.ShouldEqual, ApproachFront)

	changed, err := l.Calibrate(EndstopEvents{Front: true, AbsPosMM: 101})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, l.State(), test.ShouldEqual, CenterPosSet)
	test.That(t, l.Localized(), test.ShouldBeTrue)
	test.That(t, l.PartialPending(), test.ShouldBeFalse)
	test.That(t, l.Movement(), test.ShouldEqual, Stop)
	test.That(t, l.EndPosMM(), test.ShouldEqual, int32(14))
	test.That(t, l.CenterPosMM(), test.ShouldEqual, int32(2))
	test.That(t, l.StartPosAbsMM(), test.ShouldEqual, int32(101))
	test.That(t, l.CurrentPosMM(), test.ShouldEqual, int32(-14))
}

func TestPartialRecoveryNeedsGeometry(t *testing.T) {
	l := newTestLocalization(t, Snapshot{State: ApproachFront, EndPosMM: 0}, true)
	test.That(t, l.Recovery(), test.ShouldEqual, RecoveryReset)

	l.Trigger()
	_, err := l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	_, err = l.Calibrate(EndstopEvents{Front: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.State(), test.ShouldEqual, ApproachBack)
}

func TestResetKeepsGeometryForPartialRecovery(t *testing.T) {
	l := newTestLocalization(t, Snapshot{State: CenterPosSet, PulseCount: 150, EndPosMM: 14, CenterPosMM: 1}, true)
	l.Reset()
	test.That(t, l.State(), test.ShouldEqual, Init)
	test.That(t, l.Localized(), test.ShouldBeFalse)

	l.Trigger()
	_, err := l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)

	// Power lost during the front approach
	snap := l.Snapshot()
	test.That(t, snap.State, test.ShouldEqual, ApproachFront)
	again := newTestLocalization(t, snap, true)
	test.That(t, again.Recovery(), test.ShouldEqual, RecoveryPartial)
	test.That(t, again.CenterPosMM(), test.ShouldEqual, int32(1))
}

func TestResetBeforeCenterDropsGeometry(t *testing.T) {
	l := newTestLocalization(t, Snapshot{}, false)
	calibrate(t, l, 300)
	test.That(t, l.State(), test.ShouldEqual, ApproachCenter)
	test.That(t, l.EndPosMM(), test.ShouldEqual, int32(14))

	// Emergency before the center was confirmed, then the user retries
	l.Reset()
	test.That(t, l.EndPosMM(), test.ShouldEqual, int32(0))
	test.That(t, l.CenterPosMM(), test.ShouldEqual, int32(0))
	l.Trigger()
	_, err := l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)

	// Power lost during the front approach: the back sweep runs again
	snap := l.Snapshot()
	test.That(t, snap.State, test.ShouldEqual, ApproachFront)
	test.That(t, snap.EndPosMM, test.ShouldEqual, int32(0))
	again := newTestLocalization(t, snap, true)
	test.That(t, again.Recovery(), test.ShouldEqual, RecoveryReset)

	again.Trigger()
	_, err = again.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	_, err = again.Calibrate(EndstopEvents{Front: true, AbsPosMM: 100})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.State(), test.ShouldEqual, ApproachBack)
	test.That(t, again.Localized(), test.ShouldBeFalse)
}

func TestRecalibrationSweepReplacesCenteredGeometry(t *testing.T) {
	l := newTestLocalization(t, Snapshot{State: CenterPosSet, PulseCount: 150, EndPosMM: 14, CenterPosMM: 1}, true)
	l.Reset()
	l.Trigger()
	_, err := l.Calibrate(EndstopEvents{})
	test.That(t, err, test.ShouldBeNil)
	_, err = l.Calibrate(EndstopEvents{Front: true, AbsPosMM: 100})
	test.That(t, err, test.ShouldBeNil)
	pulses(l, Backward, 240)
	_, err = l.Calibrate(EndstopEvents{Back: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.EndPosMM(), test.ShouldEqual, int32(11))

	// The new sweep was never confirmed, so a reset forgets it
	l.Reset()
	test.That(t, l.EndPosMM(), test.ShouldEqual, int32(0))
	test.That(t, l.CenterPosMM(), test.ShouldEqual, int32(0))
}

func TestReanchor(t *testing.T) {
	l := newTestLocalization(t, Snapshot{State: CenterPosSet, PulseCount: 150, EndPosMM: 14}, true)

	l.ReanchorFront(95)
	test.That(t, l.StartPosAbsMM(), test.ShouldEqual, int32(95))
	test.That(t, l.PulseCount(), test.ShouldEqual, int32(0))

	l.pulseCount.Store(322)
	l.ReanchorBack()
	// round(322 * 1.12 / 12 / 2)
	test.That(t, l.EndPosMM(), test.ShouldEqual, int32(15))
}

func TestMeasurePosition(t *testing.T) {
	l := newTestLocalization(t, Snapshot{State: CenterPosSet, PulseCount: 150, EndPosMM: 14, StartPosAbsMM: 100}, true)
	test.That(t, l.MeasurePosition(114), test.ShouldEqual, int32(0))
	test.That(t, l.MeasurePosition(120), test.ShouldEqual, int32(6))
	test.That(t, l.MeasuredPosMM(), test.ShouldEqual, int32(6))
}
