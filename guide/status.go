package guide

import "sailguide/localization"

// Status is a point-in-time view of the guide for the command link.
type Status struct {
	State              localization.State
	Recovery           localization.Recovery
	Localized          bool
	Error              ErrorState
	Mode               OperatingMode
	SailMode           SailMode
	Movement           localization.Movement
	PositionMM         int32
	MeasuredMM         int32
	DesiredMM          int32
	CenterMM           int32
	EndMM              int32
	BrakePathMM        int32
	TrimPercent        int
	RPM                float64
	RPMSetPoint        uint16
	MaxRPM             uint16
	MaxDistanceFaultMM uint8
	CurrentMA          int32
}

// Status collects the current state.
func (g *Guide) Status() Status {
	return Status{
		State:              g.loc.State(),
		Recovery:           g.loc.Recovery(),
		Localized:          g.loc.Localized(),
		Error:              g.errorState,
		Mode:               g.mode,
		SailMode:           g.sailMode,
		Movement:           g.loc.Movement(),
		PositionMM:         g.loc.CurrentPosMM(),
		MeasuredMM:         g.loc.MeasuredPosMM(),
		DesiredMM:          g.loc.DesiredPosMM(),
		CenterMM:           g.loc.CenterPosMM(),
		EndMM:              g.loc.EndPosMM(),
		BrakePathMM:        g.loc.BrakePathMM(),
		TrimPercent:        g.CurrentTrimPercentage(),
		RPM:                g.motor.RPM(),
		RPMSetPoint:        g.motor.RPMSetPoint(),
		MaxRPM:             g.motor.MaxRPM(),
		MaxDistanceFaultMM: g.maxDistanceFault,
		CurrentMA:          g.lastCurrentMA,
	}
}
