package guide

import (
	"math"

	"sailguide/motor"
)

const brakeSafetyMargin = 1.25

// BrakePathMM returns the distance needed to ramp down from rpm to standstill,
// with a safety margin, rounded up to whole millimetres.
func BrakePathMM(rpm uint16, ramp motor.RampConfig, distancePerRotationMM float64) int32 {
	if rpm == 0 || ramp.StepRPM == 0 || ramp.StepInterval <= 0 {
		return 0
	}
	dv := float64(ramp.StepRPM) / 60 * distancePerRotationMM
	a := dv / ramp.StepInterval.Seconds()
	v := float64(rpm) / 60 * distancePerRotationMM
	t := v / a
	brake := (v*t - 0.5*a*t*t) * brakeSafetyMargin
	return int32(math.Ceil(brake))
}
