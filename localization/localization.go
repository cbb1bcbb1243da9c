// Package localization tracks the guide position and runs the calibration
// protocol against the two endstops.
//
// Positions are millimetres relative to the middle of the travel. After a
// full calibration the front endstop sits at -EndPosMM and the back endstop
// at +EndPosMM. Backward movement counts pulses up, forward movement counts
// them down.
package localization

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrNotTriggered is returned by SetCenter before calibration reached the
// centering stage
var ErrNotTriggered = errors.New("calibration has not reached centering")

// QueueEmpty marks an empty desired position queue.
const QueueEmpty = math.MinInt32

// Config holds the mechanical constants.
type Config struct {
	DistancePerRotationMM float64
	PulsesPerRotation     uint16
}

// DistancePerPulse returns millimetres travelled per encoder edge.
func (c Config) DistancePerPulse() float64 {
	return c.DistancePerRotationMM / float64(c.PulsesPerRotation)
}

// Validate checks the mechanical constants.
func (c Config) Validate() error {
	if c.DistancePerRotationMM <= 0 || c.PulsesPerRotation == 0 {
		return errors.Errorf("invalid drive geometry: %+v", c)
	}
	return nil
}

// EndstopEvents carries the endstop edges seen in one control tick.
type EndstopEvents struct {
	Front    bool
	Back     bool
	AbsPosMM int32 // absolute sensor reading taken with the events
}

// Localization owns the position and calibration state. Everything except
// CallbackPulseCount runs on the main loop.
type Localization struct {
	logger           *zap.SugaredLogger
	distancePerPulse float64

	state     State
	localized bool
	triggered bool
	partial   bool
	recovery  Recovery
	centered  bool // end/center come from a run confirmed by SetCenter

	// Shared with the edge interrupt
	movement   atomic.Uint32
	pulseCount atomic.Int32

	endPosMM             int32
	centerPosMM          int32
	currentPosMM         int32
	currentMeasuredPosMM int32
	startPosAbsMM        int32
	desiredPosMM         int32
	desiredPosQueue      int32
	brakePathMM          int32
}

// New rebuilds the localization from a persisted snapshot. ok is false when
// the snapshot could not be read or failed its check.
func New(cfg Config, snap Snapshot, ok bool, logger *zap.SugaredLogger) (*Localization, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Localization{
		logger:           logger,
		distancePerPulse: cfg.DistancePerPulse(),
		desiredPosQueue:  QueueEmpty,
	}

	switch {
	case ok && snap.State == CenterPosSet:
		l.state = CenterPosSet
		l.pulseCount.Store(snap.PulseCount)
		l.endPosMM = snap.EndPosMM
		l.centerPosMM = snap.CenterPosMM
		l.startPosAbsMM = snap.StartPosAbsMM
		l.localized = true
		l.centered = true
		l.recovery = RecoveryComplete
		l.currentPosMM = l.computePosition()
		l.desiredPosMM = l.currentPosMM
	case ok && snap.State == ApproachFront && snap.EndPosMM > 0:
		// A centered run existed before the front approach was cut short.
		// Keep its geometry and only re-find the front endstop.
		l.state = Init
		l.endPosMM = snap.EndPosMM
		l.centerPosMM = snap.CenterPosMM
		l.startPosAbsMM = snap.StartPosAbsMM
		l.partial = true
		l.centered = true
		l.recovery = RecoveryPartial
	default:
		l.recovery = RecoveryReset
	}

	logger.Infow("localization recovered",
		"recovery", l.recovery,
		"snapshot_ok", ok,
		"snapshot_state", snap.State,
		"end_pos_mm", l.endPosMM,
		"center_pos_mm", l.centerPosMM,
	)
	return l, nil
}

func (l *Localization) transition(to State) error {
	if !CanTransition(l.state, to) {
		return errors.Wrapf(ErrIllegalTransition, "%s -> %s", l.state, to)
	}
	if to == CenterPosSet && l.state == ApproachFront && !l.partial {
		return errors.Wrapf(ErrIllegalTransition, "%s -> %s without partial recovery", l.state, to)
	}
	if l.state != to {
		l.logger.Infow("calibration state", "from", l.state, "to", to)
	}
	l.state = to
	return nil
}

// Trigger records the user confirmation that starts calibration.
func (l *Localization) Trigger() {
	l.triggered = true
}

// Calibrate runs one step of the calibration protocol and reports whether
// the state changed.
func (l *Localization) Calibrate(ev EndstopEvents) (bool, error) {
	from := l.state
	var err error

	switch l.state {
	case Init:
		if !l.triggered {
			return false, nil
		}
		l.triggered = false
		l.SetMovement(Forward)
		err = l.transition(ApproachFront)

	case ApproachFront:
		if !ev.Front {
			return false, nil
		}
		l.startPosAbsMM = ev.AbsPosMM
		l.pulseCount.Store(0)
		l.SetMovement(Stop)
		if l.partial {
			err = l.transition(CenterPosSet)
			l.partial = false
			l.localized = true
			l.currentPosMM = l.computePosition()
			l.desiredPosMM = l.currentPosMM
			break
		}
		l.SetMovement(Backward)
		err = l.transition(ApproachBack)

	case ApproachBack:
		if !ev.Back {
			return false, nil
		}
		l.SetMovement(Stop)
		l.centered = false
		l.endPosMM = int32(math.Round(l.PulsesToDistance(l.pulseCount.Load()) / 2))
		l.currentPosMM = l.endPosMM
		l.desiredPosMM = 0
		err = l.transition(ApproachCenter)

	case ApproachCenter:
		arrived := l.currentPosMM == l.desiredPosMM
		settled := l.Movement() == Stop && l.NextMovement(l.desiredPosMM) == Stop
		if !arrived && !settled {
			return false, nil
		}
		err = l.transition(SetCenterPos)
	}

	if err != nil {
		return false, err
	}
	return l.state != from, nil
}

// SetCenter takes the current position as the sail center and completes the
// calibration.
func (l *Localization) SetCenter() error {
	if l.state != SetCenterPos && l.state != CenterPosSet {
		return errors.Wrapf(ErrNotTriggered, "state %s", l.state)
	}
	if err := l.transition(CenterPosSet); err != nil {
		return err
	}
	l.centerPosMM = l.currentPosMM
	l.desiredPosMM = l.currentPosMM
	l.desiredPosQueue = QueueEmpty
	l.localized = true
	l.centered = true
	l.triggered = false
	return nil
}

// Reset returns to Init for a full calibration. Geometry confirmed by
// SetCenter is kept so that an interrupted front approach can still be
// recovered partially; a calibration cut short before SetCenter leaves
// nothing to recover.
func (l *Localization) Reset() {
	_ = l.transition(Init)
	if !l.centered {
		l.endPosMM = 0
		l.centerPosMM = 0
	}
	l.SetMovement(Stop)
	l.localized = false
	l.triggered = false
	l.partial = false
	l.recovery = RecoveryReset
	l.desiredPosQueue = QueueEmpty
}

func (l *Localization) computePosition() int32 {
	pos := int32(math.Round(l.PulsesToDistance(l.pulseCount.Load()))) - l.endPosMM
	if l.localized {
		if pos > l.endPosMM {
			pos = l.endPosMM
		}
		if pos < -l.endPosMM {
			pos = -l.endPosMM
		}
	}
	return pos
}

// UpdatePosition recomputes the position from the pulse count. It does
// nothing before the back endstop has been measured.
func (l *Localization) UpdatePosition() PositionUpdate {
	if l.state < ApproachCenter {
		return PositionRetained
	}
	pos := l.computePosition()
	if pos == l.currentPosMM {
		return PositionRetained
	}
	l.currentPosMM = pos
	return PositionUpdated
}

// MeasurePosition converts an absolute sensor reading into the position frame
// and records it.
func (l *Localization) MeasurePosition(absMM int32) int32 {
	l.currentMeasuredPosMM = absMM - l.startPosAbsMM - l.endPosMM
	return l.currentMeasuredPosMM
}

// CallbackPulseCount counts one encoder edge in the direction of movement.
// It is called from interrupt context.
func (l *Localization) CallbackPulseCount() {
	switch Movement(l.movement.Load()) {
	case Backward:
		l.pulseCount.Inc()
	case Forward:
		l.pulseCount.Dec()
	}
}

// NextMovement returns the movement needed to reach target, or Stop when the
// target lies within one brake path of the current position.
func (l *Localization) NextMovement(target int32) Movement {
	switch {
	case target > l.currentPosMM+l.brakePathMM:
		return Backward
	case target < l.currentPosMM-l.brakePathMM:
		return Forward
	default:
		return Stop
	}
}

// SetDesiredPosQueued applies target now if it does not reverse the current
// movement, otherwise it is held until ProgressQueue. It reports whether the
// target was queued.
func (l *Localization) SetDesiredPosQueued(target int32, inferred Movement) bool {
	current := l.Movement()
	if current == Stop || current == inferred {
		l.desiredPosMM = target
		if inferred == current {
			l.desiredPosQueue = QueueEmpty
		}
		return false
	}
	l.desiredPosQueue = target
	return true
}

// SetDesiredPos replaces the target and drops anything queued.
func (l *Localization) SetDesiredPos(target int32) {
	l.desiredPosMM = target
	l.desiredPosQueue = QueueEmpty
}

// ProgressQueue promotes a queued target. Call it once the guide has stopped.
func (l *Localization) ProgressQueue() bool {
	if l.desiredPosQueue == QueueEmpty {
		return false
	}
	l.desiredPosMM = l.desiredPosQueue
	l.desiredPosQueue = QueueEmpty
	return true
}

// ReanchorFront resynchronises on the front endstop during normal operation.
func (l *Localization) ReanchorFront(absMM int32) {
	l.startPosAbsMM = absMM
	l.pulseCount.Store(0)
	l.logger.Debugw("front endstop reanchor", "start_pos_abs_mm", absMM)
}

// ReanchorBack remeasures the travel on the back endstop.
func (l *Localization) ReanchorBack() {
	l.endPosMM = int32(math.Round(l.PulsesToDistance(l.pulseCount.Load()) / 2))
	l.logger.Debugw("back endstop reanchor", "end_pos_mm", l.endPosMM)
}

// PulsesToDistance converts a pulse count to millimetres.
func (l *Localization) PulsesToDistance(pulses int32) float64 {
	return float64(pulses) * l.distancePerPulse
}

// Snapshot returns the record to persist.
func (l *Localization) Snapshot() Snapshot {
	return Snapshot{
		State:         l.state,
		PulseCount:    l.pulseCount.Load(),
		EndPosMM:      l.endPosMM,
		CenterPosMM:   l.centerPosMM,
		StartPosAbsMM: l.startPosAbsMM,
	}
}

// SetMovement records the direction the motor is driven in.
func (l *Localization) SetMovement(m Movement) {
	l.movement.Store(uint32(m))
}

// Movement returns the current movement.
func (l *Localization) Movement() Movement {
	return Movement(l.movement.Load())
}

// SetBrakePath sets the stopping distance used by NextMovement.
func (l *Localization) SetBrakePath(mm int32) {
	l.brakePathMM = mm
}

// BrakePathMM returns the stopping distance.
func (l *Localization) BrakePathMM() int32 { return l.brakePathMM }

// State returns the calibration stage.
func (l *Localization) State() State { return l.state }

// Localized reports whether the position is trusted.
func (l *Localization) Localized() bool { return l.localized }

// Triggered reports a pending user confirmation.
func (l *Localization) Triggered() bool { return l.triggered }

// PartialPending reports a partial recovery waiting for the front endstop.
func (l *Localization) PartialPending() bool { return l.partial }

// Recovery returns how the instance was constructed.
func (l *Localization) Recovery() Recovery { return l.recovery }

// PulseCount returns the encoder pulse count.
func (l *Localization) PulseCount() int32 { return l.pulseCount.Load() }

// EndPosMM returns half the measured travel.
func (l *Localization) EndPosMM() int32 { return l.endPosMM }

// CenterPosMM returns the confirmed sail center.
func (l *Localization) CenterPosMM() int32 { return l.centerPosMM }

// CurrentPosMM returns the position from the pulse count.
func (l *Localization) CurrentPosMM() int32 { return l.currentPosMM }

// MeasuredPosMM returns the last absolute sensor position.
func (l *Localization) MeasuredPosMM() int32 { return l.currentMeasuredPosMM }

// StartPosAbsMM returns the absolute reading at the front endstop.
func (l *Localization) StartPosAbsMM() int32 { return l.startPosAbsMM }

// DesiredPosMM returns the active target.
func (l *Localization) DesiredPosMM() int32 { return l.desiredPosMM }

// QueuedPosMM returns the queued target, if any.
func (l *Localization) QueuedPosMM() (int32, bool) {
	return l.desiredPosQueue, l.desiredPosQueue != QueueEmpty
}
