package guide

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"sailguide/localization"
	"sailguide/motor"
)

// updateMovement drives the motor for this tick and reports whether the
// calibration state changed.
func (g *Guide) updateMovement(ctx context.Context) (bool, error) {
	var errs error

	_, frontNew := g.front.Poll()
	_, backNew := g.back.Poll()

	var absMM int32
	if frontNew {
		// The front endstop anchors the absolute sensor
		abs, err := g.dist.SampleMM(ctx)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "distance sensor at front endstop"))
		}
		absMM = abs
	}
	if frontNew || backNew {
		g.logger.Infow("endstop", "front", frontNew, "back", backNew, "pos_mm", g.loc.CurrentPosMM())
		errs = multierr.Append(errs, g.halt())
	}

	if g.mode == Automatic && !g.loc.Localized() {
		g.mode = Manual
		g.logger.Warnw("automatic mode left, guide not localized")
	}

	calibrated := false
	state := g.loc.State()
	var next localization.Movement
	if state < localization.ApproachCenter {
		changed, err := g.loc.Calibrate(localization.EndstopEvents{Front: frontNew, Back: backNew, AbsPosMM: absMM})
		errs = multierr.Append(errs, err)
		calibrated = changed
		next = g.loc.Movement()
	} else {
		if frontNew {
			g.loc.ReanchorFront(absMM)
		}
		if backNew {
			g.loc.ReanchorBack()
		}
		if g.windFault && g.loc.Localized() {
			g.protectiveTarget()
		}
		next = g.loc.NextMovement(g.loc.DesiredPosMM())
		if frontNew || backNew {
			next = localization.Stop
		}
		if state == localization.ApproachCenter {
			changed, err := g.loc.Calibrate(localization.EndstopEvents{})
			errs = multierr.Append(errs, err)
			calibrated = changed
		}
	}

	errs = multierr.Append(errs, g.issue(next))

	switch g.motor.Advance() {
	case motor.RampStepped:
		g.updateBrakePath()
	case motor.RampStopped:
		g.loc.SetMovement(localization.Stop)
		g.updateBrakePath()
		if g.loc.ProgressQueue() {
			g.logger.Debugw("queued target promoted", "desired_pos_mm", g.loc.DesiredPosMM())
		}
	}
	return calibrated, errs
}

// issue commands a movement if it differs from the last one. A reversal
// first stops; the new direction is taken once the ramp reports standstill.
func (g *Guide) issue(next localization.Movement) error {
	if next == g.issued {
		return nil
	}
	if next != localization.Stop && g.issued != localization.Stop {
		next = localization.Stop
	}
	if next != localization.Stop && g.loc.Movement() != localization.Stop && g.loc.Movement() != next {
		// Still coasting the other way
		return nil
	}

	var err error
	if next == localization.Stop {
		err = g.motor.StopMoving()
	} else {
		err = g.motor.StartMoving(motorDirection(next))
		g.loc.SetMovement(next)
	}
	g.issued = next
	if err != nil {
		return errors.Wrapf(err, "command %s", next)
	}
	return nil
}

// reverse commands m at once. Travel the other way is cut with a halt
// instead of waiting for the ramp to reach standstill.
func (g *Guide) reverse(m localization.Movement) error {
	current := g.loc.Movement()
	if (g.issued == localization.Stop || g.issued == m) && (current == localization.Stop || current == m) {
		return g.issue(m)
	}
	g.logger.Debugw("immediate reversal", "from", current, "to", m)
	err := g.halt()
	g.loc.SetMovement(localization.Stop)
	return multierr.Append(err, g.issue(m))
}

func (g *Guide) halt() error {
	err := g.motor.Halt()
	g.issued = localization.Stop
	g.updateBrakePath()
	if err != nil {
		return errors.Wrap(err, "halt")
	}
	return nil
}

func (g *Guide) updateBrakePath() {
	g.loc.SetBrakePath(BrakePathMM(g.motor.RPMSetPoint(), g.motor.Ramp(), g.distancePerRotation))
}

// protectiveTarget moves the guide fully to the roll side.
func (g *Guide) protectiveTarget() {
	target := g.trimTarget(100)
	if q, ok := g.loc.QueuedPosMM(); g.loc.DesiredPosMM() == target || (ok && q == target) {
		return
	}
	g.loc.SetDesiredPosQueued(target, g.loc.NextMovement(target))
}

func (g *Guide) clamp(target int32) int32 {
	end := g.loc.EndPosMM()
	if target > end {
		return end
	}
	if target < -end {
		return -end
	}
	return target
}

// jogTarget is where a jog in direction m ends: the end of travel, or for
// Stop the point one brake path ahead of the current movement.
func (g *Guide) jogTarget(m localization.Movement) int32 {
	end := g.loc.EndPosMM()
	switch m {
	case localization.Backward:
		return end
	case localization.Forward:
		return -end
	}
	current := g.loc.CurrentPosMM()
	switch g.loc.Movement() {
	case localization.Backward:
		return g.clamp(current + g.loc.BrakePathMM())
	case localization.Forward:
		return g.clamp(current - g.loc.BrakePathMM())
	}
	return current
}

// Move jogs the guide. An immediate request replaces any target and is
// commanded in this call without the brake path dead-band, reversing
// through a halt if needed.
func (g *Guide) Move(m localization.Movement, immediate bool) (MoveResult, error) {
	if g.loc.State() < localization.SetCenterPos {
		return MoveRetained, errors.Wrapf(ErrNotCalibrated, "state %s", g.loc.State())
	}
	if g.errorState.emergency() {
		return MoveRetained, errors.Wrapf(ErrFaultActive, "%s", g.errorState)
	}
	beforeDesired := g.loc.DesiredPosMM()
	beforeQueued, _ := g.loc.QueuedPosMM()

	if immediate {
		var err error
		if m == localization.Stop {
			g.loc.SetDesiredPos(g.loc.CurrentPosMM())
			err = g.halt()
		} else {
			g.loc.SetDesiredPos(g.jogTarget(m))
			err = g.reverse(m)
		}
		if err != nil {
			return MoveRetained, err
		}
	} else if m == localization.Stop {
		// Release: coast to a stop one brake path ahead
		g.loc.SetDesiredPos(g.jogTarget(m))
	} else {
		target := g.jogTarget(m)
		g.loc.SetDesiredPosQueued(target, g.loc.NextMovement(target))
	}

	afterQueued, _ := g.loc.QueuedPosMM()
	if g.loc.DesiredPosMM() == beforeDesired && afterQueued == beforeQueued {
		return MoveRetained, nil
	}
	g.logger.Debugw("move", "movement", m, "immediate", immediate, "desired_pos_mm", g.loc.DesiredPosMM())
	return MoveChanged, nil
}

// ManualMove is the operator button jog. Stop is the button release.
func (g *Guide) ManualMove(m localization.Movement) error {
	if g.mode != Manual {
		return ErrNotManual
	}
	_, err := g.Move(m, false)
	return err
}

// trimTarget maps -100..100 percent onto the travel: 0 is the center,
// 100 the back end, -100 the front end.
func (g *Guide) trimTarget(pct int) int32 {
	center := g.loc.CenterPosMM()
	end := g.loc.EndPosMM()
	if pct >= 0 {
		return center + int32(pct)*(end-center)/100
	}
	return center + int32(pct)*(center+end)/100
}

// SetDesiredTrimPercentage sets the target as a percentage of the travel on
// either side of center. Automatic mode only.
func (g *Guide) SetDesiredTrimPercentage(pct int) error {
	if g.mode != Automatic {
		return ErrNotAutomatic
	}
	if pct < -100 || pct > 100 {
		return errors.Wrapf(ErrOutOfRange, "trim %d%%", pct)
	}
	if g.windFault {
		// The wind fault holds the roll side
		return errors.Wrapf(ErrFaultActive, "%s", WindSpeedFault)
	}
	target := g.trimTarget(pct)
	queued := g.loc.SetDesiredPosQueued(target, g.loc.NextMovement(target))
	g.logger.Debugw("trim", "pct", pct, "target_mm", target, "queued", queued)
	return nil
}

// CurrentTrimPercentage converts the position back to -100..100.
func (g *Guide) CurrentTrimPercentage() int {
	center := g.loc.CenterPosMM()
	end := g.loc.EndPosMM()
	offset := g.loc.CurrentPosMM() - center
	var span int32
	if offset >= 0 {
		span = end - center
	} else {
		span = center + end
	}
	if span <= 0 {
		return 0
	}
	pct := int(offset * 100 / span)
	if pct > 100 {
		pct = 100
	}
	if pct < -100 {
		pct = -100
	}
	return pct
}
