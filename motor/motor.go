// Package motor drives the guide's DC motor controller: four digital command
// outputs, an analog speed set point, fault and direction readback inputs and
// RPM measurement from encoder edge timestamps.
package motor

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sailguide/core"
)

// Pins is the controller wiring.
type Pins struct {
	Rotation      [2]core.GPIOPin // function codes 0-3
	Speed         [2]core.GPIOPin // function codes 4-7
	SpeedSetpoint core.GPIOPin    // analog output
	Fault         core.GPIOPin
	FaultActive   bool // level of Fault when the controller reports a fault
	Readback      core.GPIOPin
}

// Config describes one motor.
type Config struct {
	Pins     Pins
	Inverted bool // forward is counter-clockwise
	MaxRPM   uint16
	Capture  CaptureConfig
	Ramp     RampConfig
}

// Motor is the command layer for the guide motor. All methods except
// CaptureEdge, RPM and Fault belong to the main loop.
type Motor struct {
	cfg    Config
	gpio   core.GPIODriver
	analog core.AnalogOutDriver
	ramp   *Ramp
	logger *zap.SugaredLogger

	fault    *core.InputPin
	readback *core.InputPin

	function Function
	maxRPM   uint16

	capture capture
}

// New configures the outputs, switches the motor off and returns it.
func New(
	cfg Config,
	gpio core.GPIODriver,
	analog core.AnalogOutDriver,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) (*Motor, error) {
	if err := cfg.Capture.Validate(); err != nil {
		return nil, err
	}
	ramp, err := NewRamp(cfg.Ramp, clk)
	if err != nil {
		return nil, err
	}

	m := &Motor{
		cfg:    cfg,
		gpio:   gpio,
		analog: analog,
		ramp:   ramp,
		logger: logger,
		maxRPM: cfg.MaxRPM,
	}

	for _, pin := range append(cfg.Pins.Rotation[:], cfg.Pins.Speed[:]...) {
		if err := gpio.ConfigureOutput(pin); err != nil {
			return nil, errors.Wrapf(err, "motor output %d", pin)
		}
	}
	if err := analog.Configure(cfg.Pins.SpeedSetpoint); err != nil {
		return nil, errors.Wrap(err, "motor speed set point")
	}
	m.fault, err = core.NewInputPin(gpio, cfg.Pins.Fault, !cfg.Pins.FaultActive, !cfg.Pins.FaultActive)
	if err != nil {
		return nil, errors.Wrap(err, "motor fault input")
	}
	m.readback, err = core.NewInputPin(gpio, cfg.Pins.Readback, true, false)
	if err != nil {
		return nil, errors.Wrap(err, "motor readback input")
	}

	if err := m.Apply(Off); err != nil {
		return nil, err
	}
	return m, nil
}

// Apply writes a function code to its output pair.
func (m *Motor) Apply(f Function) error {
	if !f.Valid() {
		return errors.Errorf("invalid motor function %d", uint8(f))
	}
	group, bits := f.outputs()
	pins := m.cfg.Pins.Rotation
	if group == speedGroup {
		pins = m.cfg.Pins.Speed
	}
	err := multierr.Combine(
		m.gpio.SetPin(pins[0], bits&0x01 != 0),
		m.gpio.SetPin(pins[1], bits&0x02 != 0),
	)
	if err != nil {
		return errors.Wrapf(err, "apply %s", f)
	}
	if f != m.function {
		m.logger.Debugw("motor function", "function", f)
	}
	m.function = f
	return nil
}

// Function returns the last applied function code.
func (m *Motor) Function() Function {
	return m.function
}

func (m *Motor) rotation(d Direction) Function {
	if (d == Forward) != m.cfg.Inverted {
		return Clockwise
	}
	return CounterClockwise
}

// StartMoving sets the rotation direction, selects speed preset 1 and ramps
// toward the maximum RPM.
func (m *Motor) StartMoving(d Direction) error {
	if err := m.Apply(m.rotation(d)); err != nil {
		return err
	}
	if err := m.Apply(SpeedPreset1); err != nil {
		return err
	}
	m.ramp.SetTarget(m.maxRPM)
	return nil
}

// StopMoving switches the motor off and ramps the set point down.
func (m *Motor) StopMoving() error {
	m.ramp.SetTarget(0)
	return m.Apply(Off)
}

// Halt switches the motor off and zeroes the set point immediately.
func (m *Motor) Halt() error {
	m.ramp.Halt()
	return multierr.Combine(m.Apply(Off), m.writeSetPoint())
}

// Advance steps the speed ramp and writes a changed set point to the analog
// output. A write failure is logged; the ramp event is still returned.
func (m *Motor) Advance() RampEvent {
	ev := m.ramp.Advance()
	if ev == RampStepped {
		if err := m.writeSetPoint(); err != nil {
			m.logger.Warnw("speed set point write failed", "error", err)
		}
	}
	return ev
}

func (m *Motor) writeSetPoint() error {
	if m.maxRPM == 0 {
		return m.analog.Set(m.cfg.Pins.SpeedSetpoint, 0)
	}
	rpm := uint32(m.ramp.SetPoint())
	if rpm > uint32(m.maxRPM) {
		rpm = uint32(m.maxRPM)
	}
	level := core.AnalogOutValue(rpm * m.analog.MaxValue() / uint32(m.maxRPM))
	return m.analog.Set(m.cfg.Pins.SpeedSetpoint, level)
}

// RPMSetPoint returns the current ramp set point.
func (m *Motor) RPMSetPoint() uint16 {
	return m.ramp.SetPoint()
}

// Ramp returns the speed ramp parameters.
func (m *Motor) Ramp() RampConfig {
	return m.ramp.Config()
}

// MaxRPM returns the speed preset target.
func (m *Motor) MaxRPM() uint16 {
	return m.maxRPM
}

// SetMaxRPM changes the speed target. A motor in motion ramps to the new value.
func (m *Motor) SetMaxRPM(rpm uint16) {
	m.maxRPM = rpm
	if m.ramp.Target() != 0 {
		m.ramp.SetTarget(rpm)
	}
}

// Fault reports whether the controller asserts its fault output.
func (m *Motor) Fault() bool {
	return m.fault.Active()
}

// RotationReadback returns the controller's direction readback level.
func (m *Motor) RotationReadback() bool {
	return m.readback.Active()
}
