// Package inject provides function-field implementations of the guide
// interfaces for tests.
package inject

import (
	"context"

	"sailguide/guide"
	"sailguide/link"
	"sailguide/localization"
)

// Guide is an injected coordinator. Calls without an injected function go
// to the embedded implementation.
type Guide struct {
	link.Guide
	StatusFunc                   func() guide.Status
	SetOperatingModeFunc         func(mode guide.OperatingMode) guide.ModeResult
	MoveFunc                     func(m localization.Movement, immediate bool) (guide.MoveResult, error)
	ManualMoveFunc               func(m localization.Movement) error
	SetDesiredTrimPercentageFunc func(pct int) error
	CurrentTrimPercentageFunc    func() int
	ErrorFunc                    func() guide.ErrorState
	SetErrorFunc                 func(state guide.ErrorState) error
	SetCenterFunc                func() error
	TriggerFunc                  func()
	RecalibrateFunc              func() error
	MaxRPMFunc                   func() uint16
	MaxDistanceFaultFunc         func() uint8
	SetMaxRPMFunc                func(ctx context.Context, rpm uint16) error
	SetMaxDistanceFaultFunc      func(ctx context.Context, mm uint8) error
}

// Status calls the injected Status or the real version.
func (g *Guide) Status() guide.Status {
	if g.StatusFunc == nil {
		return g.Guide.Status()
	}
	return g.StatusFunc()
}

// SetOperatingMode calls the injected SetOperatingMode or the real version.
func (g *Guide) SetOperatingMode(mode guide.OperatingMode) guide.ModeResult {
	if g.SetOperatingModeFunc == nil {
		return g.Guide.SetOperatingMode(mode)
	}
	return g.SetOperatingModeFunc(mode)
}

// Move calls the injected Move or the real version.
func (g *Guide) Move(m localization.Movement, immediate bool) (guide.MoveResult, error) {
	if g.MoveFunc == nil {
		return g.Guide.Move(m, immediate)
	}
	return g.MoveFunc(m, immediate)
}

// ManualMove calls the injected ManualMove or the real version.
func (g *Guide) ManualMove(m localization.Movement) error {
	if g.ManualMoveFunc == nil {
		return g.Guide.ManualMove(m)
	}
	return g.ManualMoveFunc(m)
}

// SetDesiredTrimPercentage calls the injected SetDesiredTrimPercentage or the real version.
func (g *Guide) SetDesiredTrimPercentage(pct int) error {
	if g.SetDesiredTrimPercentageFunc == nil {
		return g.Guide.SetDesiredTrimPercentage(pct)
	}
	return g.SetDesiredTrimPercentageFunc(pct)
}

// CurrentTrimPercentage calls the injected CurrentTrimPercentage or the real version.
func (g *Guide) CurrentTrimPercentage() int {
	if g.CurrentTrimPercentageFunc == nil {
		return g.Guide.CurrentTrimPercentage()
	}
	return g.CurrentTrimPercentageFunc()
}

// Error calls the injected Error or the real version.
func (g *Guide) Error() guide.ErrorState {
	if g.ErrorFunc == nil {
		return g.Guide.Error()
	}
	return g.ErrorFunc()
}

// SetError calls the injected SetError or the real version.
func (g *Guide) SetError(state guide.ErrorState) error {
	if g.SetErrorFunc == nil {
		return g.Guide.SetError(state)
	}
	return g.SetErrorFunc(state)
}

// SetCenter calls the injected SetCenter or the real version.
func (g *Guide) SetCenter() error {
	if g.SetCenterFunc == nil {
		return g.Guide.SetCenter()
	}
	return g.SetCenterFunc()
}

// Trigger calls the injected Trigger or the real version.
func (g *Guide) Trigger() {
	if g.TriggerFunc == nil {
		g.Guide.Trigger()
		return
	}
	g.TriggerFunc()
}

// MaxRPM calls the injected MaxRPM or the real version.
func (g *Guide) MaxRPM() uint16 {
	if g.MaxRPMFunc == nil {
		return g.Guide.MaxRPM()
	}
	return g.MaxRPMFunc()
}

// MaxDistanceFault calls the injected MaxDistanceFault or the real version.
func (g *Guide) MaxDistanceFault() uint8 {
	if g.MaxDistanceFaultFunc == nil {
		return g.Guide.MaxDistanceFault()
	}
	return g.MaxDistanceFaultFunc()
}

// SetMaxRPM calls the injected SetMaxRPM or the real version.
func (g *Guide) SetMaxRPM(ctx context.Context, rpm uint16) error {
	if g.SetMaxRPMFunc == nil {
		return g.Guide.SetMaxRPM(ctx, rpm)
	}
	return g.SetMaxRPMFunc(ctx, rpm)
}

// SetMaxDistanceFault calls the injected SetMaxDistanceFault or the real version.
func (g *Guide) SetMaxDistanceFault(ctx context.Context, mm uint8) error {
	if g.SetMaxDistanceFaultFunc == nil {
		return g.Guide.SetMaxDistanceFault(ctx, mm)
	}
	return g.SetMaxDistanceFaultFunc(ctx, mm)
}

// Recalibrate calls the injected Recalibrate or the real version.
func (g *Guide) Recalibrate() error {
	if g.RecalibrateFunc == nil {
		return g.Guide.Recalibrate()
	}
	return g.RecalibrateFunc()
}
