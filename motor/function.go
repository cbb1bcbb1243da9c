package motor

import "fmt"

// Function is the 8-way motor command code. Codes 0-3 drive the rotation
// output pair, codes 4-7 drive the speed-mode output pair.
type Function uint8

// Function codes
const (
	Off Function = iota
	Clockwise
	CounterClockwise
	HoldStop
	VelocitySetpoint
	CurrentSetpoint
	SpeedPreset1
	SpeedPreset2
)

var functionNames = [...]string{
	"off",
	"clockwise",
	"counter_clockwise",
	"hold_stop",
	"velocity_setpoint",
	"current_setpoint",
	"speed_preset_1",
	"speed_preset_2",
}

func (f Function) String() string {
	if int(f) < len(functionNames) {
		return functionNames[f]
	}
	return fmt.Sprintf("function(%d)", uint8(f))
}

// Valid reports whether f is one of the eight codes.
func (f Function) Valid() bool {
	return f <= SpeedPreset2
}

type outputGroup uint8

const (
	rotationGroup outputGroup = iota
	speedGroup
)

// outputs resolves the code to its output pair and the 2-bit pattern
// (bit 0 on the first pin, bit 1 on the second).
func (f Function) outputs() (outputGroup, uint8) {
	if f < VelocitySetpoint {
		return rotationGroup, uint8(f) & 0x03
	}
	return speedGroup, uint8(f-VelocitySetpoint) & 0x03
}

// Direction of travel along the guide.
type Direction uint8

// Directions
const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}
