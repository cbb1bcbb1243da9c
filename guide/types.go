package guide

import (
	"fmt"

	"github.com/pkg/errors"

	"sailguide/localization"
	"sailguide/motor"
)

var (
	// ErrNotManual is returned by manual jogging outside manual mode
	ErrNotManual = errors.New("guide is not in manual mode")
	// ErrNotAutomatic is returned by trim requests outside automatic mode
	ErrNotAutomatic = errors.New("guide is not in automatic mode")
	// ErrNotCalibrated is returned when calibration has not reached centering
	ErrNotCalibrated = errors.New("guide is not calibrated")
	// ErrOutOfRange is returned for arguments outside their range
	ErrOutOfRange = errors.New("value out of range")
	// ErrFaultActive is returned when acknowledging a fault that is still present
	ErrFaultActive = errors.New("fault condition still present")
)

// ErrorState is the fault severity, ordered from least to most severe.
type ErrorState uint8

// Error states
const (
	Normal ErrorState = iota
	DistanceFault
	WindSpeedFault
	MotorFault
	CurrentFault
)

var errorStateNames = [...]string{"normal", "distance_fault", "wind_speed_fault", "motor_fault", "current_fault"}

func (e ErrorState) String() string {
	if int(e) < len(errorStateNames) {
		return errorStateNames[e]
	}
	return fmt.Sprintf("error_state(%d)", uint8(e))
}

// Valid reports whether e is a known state.
func (e ErrorState) Valid() bool {
	return e <= CurrentFault
}

// emergency reports whether the state stops the motor.
func (e ErrorState) emergency() bool {
	return e >= MotorFault
}

// OperatingMode selects who sets the target.
type OperatingMode uint8

// Operating modes
const (
	Manual OperatingMode = iota
	Automatic
)

func (m OperatingMode) String() string {
	if m == Automatic {
		return "automatic"
	}
	return "manual"
}

// SailMode is which side of center the guide is on.
type SailMode uint8

// Sail adjustment modes
const (
	Trim SailMode = iota
	Roll
)

func (m SailMode) String() string {
	if m == Roll {
		return "roll"
	}
	return "trim"
}

// TickResult is the outcome of one control tick.
type TickResult uint8

// Tick results
const (
	TickNormal TickResult = iota
	TickEmergencyShutdown
)

// ModeResult is the answer to an operating mode request.
type ModeResult uint8

// Mode results
const (
	ModeAccepted ModeResult = iota
	ModeDenied
)

// MoveResult reports whether a move request changed the target.
type MoveResult uint8

// Move results
const (
	MoveRetained MoveResult = iota
	MoveChanged
)

func (r MoveResult) String() string {
	if r == MoveChanged {
		return "changed"
	}
	return "retained"
}

// Motor is the motor command layer the guide drives.
type Motor interface {
	StartMoving(d motor.Direction) error
	StopMoving() error
	Halt() error
	Advance() motor.RampEvent
	Fault() bool
	RPM() float64
	RPMSetPoint() uint16
	Ramp() motor.RampConfig
	MaxRPM() uint16
	SetMaxRPM(rpm uint16)
	CaptureEdge(ts uint32)
}

func motorDirection(m localization.Movement) motor.Direction {
	if m == localization.Backward {
		return motor.Backward
	}
	return motor.Forward
}
