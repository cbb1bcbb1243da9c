// Package guide is the linear guide coordinator. It owns the motor and the
// localization, supervises faults and runs the periodic control tick.
package guide

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sailguide/config"
	"sailguide/core"
	"sailguide/localization"
	"sailguide/sensor"
	"sailguide/store"
)

// CurrentLimitMA is the motor current above which the guide stops.
const CurrentLimitMA = 4000

// Indicators are the status LEDs. Any of them may be nil.
type Indicators struct {
	Error     *core.Indicator
	Localized *core.Indicator
	SailMode  *core.Indicator // on for roll
	Ack       *core.Indicator
}

// Deps are the collaborators the composition root builds.
type Deps struct {
	Motor        Motor
	Localization *localization.Localization
	Front        *core.Endstop
	Back         *core.Endstop
	Distance     sensor.Distance
	Current      sensor.Current
	Store        store.Store
	Indicators   Indicators
	Clock        clock.Clock
}

// Config holds the coordinator settings.
type Config struct {
	DistancePerRotationMM float64
	MaxDistanceFaultMM    uint8
	AckBlink              time.Duration
}

// Guide is the single coordinator instance.
type Guide struct {
	motor  Motor
	loc    *localization.Localization
	front  *core.Endstop
	back   *core.Endstop
	dist   sensor.Distance
	curr   sensor.Current
	store  store.Store
	leds   Indicators
	clock  clock.Clock
	logger *zap.SugaredLogger

	distancePerRotation float64
	ackBlink            time.Duration

	errorState       ErrorState
	latched          ErrorState // emergency state awaiting acknowledgement
	windFault        bool
	mode             OperatingMode
	sailMode         SailMode
	maxDistanceFault uint8
	lastCurrentMA    int32

	issued         localization.Movement // movement last commanded to the motor
	persistPending bool
	ackUntil       time.Time
}

// New builds the coordinator. Persisted settings override cfg when present.
func New(ctx context.Context, deps Deps, cfg Config, logger *zap.SugaredLogger) (*Guide, error) {
	if deps.Motor == nil || deps.Localization == nil || deps.Front == nil || deps.Back == nil ||
		deps.Distance == nil || deps.Current == nil || deps.Store == nil || deps.Clock == nil {
		return nil, errors.New("guide: missing dependency")
	}
	if cfg.DistancePerRotationMM <= 0 {
		return nil, errors.Errorf("guide: distance per rotation %v", cfg.DistancePerRotationMM)
	}
	if cfg.AckBlink == 0 {
		cfg.AckBlink = 500 * time.Millisecond
	}

	g := &Guide{
		motor:               deps.Motor,
		loc:                 deps.Localization,
		front:               deps.Front,
		back:                deps.Back,
		dist:                deps.Distance,
		curr:                deps.Current,
		store:               deps.Store,
		leds:                deps.Indicators,
		clock:               deps.Clock,
		logger:              logger,
		distancePerRotation: cfg.DistancePerRotationMM,
		ackBlink:            cfg.AckBlink,
		maxDistanceFault:    config.ClampDistanceFault(cfg.MaxDistanceFaultMM),
	}

	settings, ok, err := LoadSettings(ctx, g.store)
	switch {
	case ok:
		if settings.MaxRPM > 0 {
			g.motor.SetMaxRPM(settings.MaxRPM)
		}
		g.maxDistanceFault = settings.MaxDistanceFaultMM
	case err != nil:
		g.logger.Infow("using configured settings", "reason", err)
	}

	g.logger.Infow("guide ready",
		"recovery", g.loc.Recovery(),
		"state", g.loc.State(),
		"max_rpm", g.motor.MaxRPM(),
		"max_distance_fault_mm", g.maxDistanceFault,
	)
	return g, nil
}

// Update runs one control tick: fault evaluation, movement, persistence and
// sail mode. Sensor and store failures are returned but never stop the tick.
func (g *Guide) Update(ctx context.Context) (TickResult, error) {
	state, moved, errs := g.evaluateFaults(ctx)
	g.setErrorState(state)

	if g.errorState.emergency() {
		errs = multierr.Append(errs, g.emergencyStop())
		g.updateIndicators()
		return TickEmergencyShutdown, errs
	}

	calibrated, err := g.updateMovement(ctx)
	errs = multierr.Append(errs, err)

	if g.loc.UpdatePosition() == localization.PositionUpdated {
		moved = true
	}
	if calibrated || g.persistPending || (moved && g.loc.Localized()) {
		g.persistPending = false
		errs = multierr.Append(errs, g.persistSnapshot(ctx))
	}

	g.updateSailMode()
	g.updateIndicators()
	return TickNormal, errs
}

// evaluateFaults checks every fault condition and returns the most severe.
func (g *Guide) evaluateFaults(ctx context.Context) (ErrorState, bool, error) {
	state := Normal
	moved := false
	var errs error

	if g.loc.Localized() {
		abs, err := g.dist.SampleMM(ctx)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "distance sensor"))
		} else {
			measured := g.loc.MeasurePosition(abs)
			moved = g.loc.UpdatePosition() == localization.PositionUpdated
			diff := measured - g.loc.CurrentPosMM()
			if diff < 0 {
				diff = -diff
			}
			if diff > int32(g.maxDistanceFault) {
				state = DistanceFault
			}
		}
	}

	if g.windFault {
		state = maxState(state, WindSpeedFault)
	}

	if g.motor.Fault() {
		state = maxState(state, MotorFault)
	}

	ma, err := g.curr.SampleMA(ctx)
	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "current sensor"))
	} else {
		g.lastCurrentMA = ma
		if ma > CurrentLimitMA {
			state = maxState(state, CurrentFault)
		}
	}

	return state, moved, errs
}

func maxState(a, b ErrorState) ErrorState {
	if b > a {
		return b
	}
	return a
}

func (g *Guide) setErrorState(state ErrorState) {
	if state.emergency() && state > g.latched {
		g.latched = state
	}
	state = maxState(state, g.latched)
	if state != g.errorState {
		if state == Normal {
			g.logger.Infow("faults cleared", "previous", g.errorState)
		} else {
			g.logger.Warnw("fault", "state", state, "previous", g.errorState, "current_ma", g.lastCurrentMA)
		}
	}
	g.errorState = state
}

func (g *Guide) emergencyStop() error {
	err := g.motor.Halt()
	g.issued = localization.Stop
	g.loc.SetMovement(localization.Stop)
	g.loc.SetBrakePath(0)
	switch state := g.loc.State(); {
	case state >= localization.SetCenterPos:
		g.loc.SetDesiredPos(g.loc.CurrentPosMM())
	case state != localization.Init:
		// An interrupted calibration restarts on the next trigger
		g.loc.Reset()
	}
	if err != nil {
		return errors.Wrap(err, "emergency stop")
	}
	return nil
}

func (g *Guide) updateSailMode() {
	mode := Trim
	if g.loc.CurrentPosMM()-g.loc.CenterPosMM() > 0 {
		mode = Roll
	}
	if mode != g.sailMode {
		g.logger.Debugw("sail mode", "mode", mode)
	}
	g.sailMode = mode
}

func (g *Guide) updateIndicators() {
	set := func(led *core.Indicator, on bool) {
		if led == nil {
			return
		}
		if err := led.Set(on); err != nil {
			g.logger.Debugw("indicator write failed", "pin", led.Pin, "error", err)
		}
	}
	set(g.leds.Error, g.errorState != Normal)
	set(g.leds.Localized, g.loc.Localized())
	set(g.leds.SailMode, g.sailMode == Roll)
	set(g.leds.Ack, g.clock.Now().Before(g.ackUntil))
}

// HandleEdge is the encoder edge interrupt entry point. ts is the capture
// timer count of the edge.
func (g *Guide) HandleEdge(ts uint32) {
	g.motor.CaptureEdge(ts)
	g.loc.CallbackPulseCount()
}

// Error returns the current fault state.
func (g *Guide) Error() ErrorState {
	return g.errorState
}

// SetError is the external fault interface. WindSpeedFault raises the sticky
// wind flag, MotorFault and CurrentFault latch an emergency stop and Normal
// acknowledges: it clears the wind flag and releases a latched emergency
// once its condition is gone.
func (g *Guide) SetError(state ErrorState) error {
	switch state {
	case Normal:
		g.windFault = false
		if g.latched != Normal {
			if g.motor.Fault() || g.lastCurrentMA > CurrentLimitMA {
				return errors.Wrapf(ErrFaultActive, "%s", g.latched)
			}
			g.logger.Infow("emergency acknowledged", "state", g.latched)
			g.latched = Normal
		}
		g.setErrorState(Normal)
	case WindSpeedFault:
		if !g.windFault {
			g.logger.Warnw("wind speed fault raised")
		}
		g.windFault = true
		g.setErrorState(maxState(g.errorState, WindSpeedFault))
	case DistanceFault, MotorFault, CurrentFault:
		g.setErrorState(maxState(g.errorState, state))
	default:
		return errors.Wrapf(ErrOutOfRange, "error state %d", state)
	}
	return nil
}

// OperatingMode returns the current mode.
func (g *Guide) OperatingMode() OperatingMode {
	return g.mode
}

// SetOperatingMode switches modes. Automatic mode needs a localized guide.
func (g *Guide) SetOperatingMode(mode OperatingMode) ModeResult {
	if mode == Automatic && !g.loc.Localized() {
		g.logger.Infow("automatic mode denied", "state", g.loc.State())
		return ModeDenied
	}
	if mode != Manual && mode != Automatic {
		return ModeDenied
	}
	if mode != g.mode {
		g.logger.Infow("operating mode", "mode", mode)
	}
	g.mode = mode
	return ModeAccepted
}

// SailMode returns the derived sail adjustment side.
func (g *Guide) SailMode() SailMode {
	return g.sailMode
}

// Trigger confirms the start of calibration.
func (g *Guide) Trigger() {
	g.loc.Trigger()
}

// SetCenter takes the current position as center. The snapshot is written on
// the next tick and the acknowledge LED blinks.
func (g *Guide) SetCenter() error {
	if err := g.loc.SetCenter(); err != nil {
		return err
	}
	g.persistPending = true
	g.ackUntil = g.clock.Now().Add(g.ackBlink)
	g.logger.Infow("center set", "center_pos_mm", g.loc.CenterPosMM(), "end_pos_mm", g.loc.EndPosMM())
	return nil
}

// Recalibrate stops the guide and returns the localization to Init; the
// calibration runs again once the operator triggers. A confirmed center is
// kept, so power lost during the next front approach recovers without the
// back sweep.
func (g *Guide) Recalibrate() error {
	err := g.halt()
	g.loc.SetMovement(localization.Stop)
	g.loc.Reset()
	if g.mode == Automatic {
		g.mode = Manual
		g.logger.Infow("operating mode", "mode", Manual)
	}
	g.persistPending = true
	g.logger.Infow("recalibration requested", "end_pos_mm", g.loc.EndPosMM(), "center_pos_mm", g.loc.CenterPosMM())
	return err
}

// Localization exposes the position state for status reporting.
func (g *Guide) Localization() *localization.Localization {
	return g.loc
}
