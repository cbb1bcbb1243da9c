package motor

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// ErrRampConfig is returned for a ramp without step size or interval
var ErrRampConfig = errors.New("ramp step_rpm and step_interval must be set")

// RampConfig sets how fast the speed set point may change. Neither field has
// a default; both must come from configuration.
type RampConfig struct {
	StepRPM      uint16
	StepInterval time.Duration
}

// Validate checks that both ramp parameters are present.
func (c RampConfig) Validate() error {
	if c.StepRPM == 0 || c.StepInterval <= 0 {
		return errors.Wrapf(ErrRampConfig, "step_rpm=%d step_interval=%s", c.StepRPM, c.StepInterval)
	}
	return nil
}

// RampEvent is the outcome of one Advance call.
type RampEvent uint8

// Ramp events
const (
	RampUnchanged RampEvent = iota
	RampStepped
	RampStopped
)

func (e RampEvent) String() string {
	switch e {
	case RampStepped:
		return "stepped"
	case RampStopped:
		return "stopped"
	default:
		return "unchanged"
	}
}

// Ramp steps a set point toward a target by StepRPM at most once per
// StepInterval.
type Ramp struct {
	cfg   RampConfig
	clock clock.Clock

	setPoint uint16
	target   uint16
	lastStep time.Time
	// Set once the arrival at zero has been reported
	stopReported bool
}

// NewRamp returns a ramp at rest.
func NewRamp(cfg RampConfig, clk clock.Clock) (*Ramp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ramp{cfg: cfg, clock: clk, stopReported: true}, nil
}

// Config returns the ramp parameters.
func (r *Ramp) Config() RampConfig {
	return r.cfg
}

// SetPoint returns the current set point in RPM.
func (r *Ramp) SetPoint() uint16 {
	return r.setPoint
}

// Target returns the RPM the ramp is heading to.
func (r *Ramp) Target() uint16 {
	return r.target
}

// SetTarget changes the destination. A nonzero target re-arms the stop report.
func (r *Ramp) SetTarget(rpm uint16) {
	r.target = rpm
	if rpm != 0 {
		r.stopReported = false
	}
}

// Halt drops the set point to zero without stepping.
func (r *Ramp) Halt() {
	if r.setPoint != 0 || r.target != 0 {
		r.stopReported = false
	}
	r.setPoint = 0
	r.target = 0
}

// Advance performs at most one step.
func (r *Ramp) Advance() RampEvent {
	if r.setPoint == r.target {
		if r.setPoint == 0 && !r.stopReported {
			r.stopReported = true
			return RampStopped
		}
		return RampUnchanged
	}

	now := r.clock.Now()
	if !r.lastStep.IsZero() && now.Sub(r.lastStep) < r.cfg.StepInterval {
		return RampUnchanged
	}
	r.lastStep = now

	step := r.cfg.StepRPM
	if r.setPoint < r.target {
		if r.target-r.setPoint < step {
			step = r.target - r.setPoint
		}
		r.setPoint += step
	} else {
		if r.setPoint-r.target < step {
			step = r.setPoint - r.target
		}
		r.setPoint -= step
	}
	return RampStepped
}
