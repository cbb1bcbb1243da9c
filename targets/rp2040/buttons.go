//go:build rp2040

package main

import (
	"go.uber.org/multierr"

	"sailguide/core"
	"sailguide/guide"
	"sailguide/localization"
)

type jogButton struct {
	button   *core.Endstop
	movement localization.Movement
	held     bool
}

// buttons are the operator panel: two jog buttons and the trigger. They are
// debounced like the endstops.
type buttons struct {
	jogs    []*jogButton
	trigger *core.Endstop
}

// poll samples every button once. A jog press starts a manual move and its
// release requests the braked stop. The trigger confirms calibration, or
// takes the current position as center while centering.
func (b *buttons) poll(g *guide.Guide) error {
	var errs error
	for _, jog := range b.jogs {
		pressed, newly := jog.button.Poll()
		switch {
		case newly:
			errs = multierr.Append(errs, g.ManualMove(jog.movement))
		case !pressed && jog.held:
			errs = multierr.Append(errs, g.ManualMove(localization.Stop))
		}
		jog.held = pressed
	}

	if b.trigger == nil {
		return errs
	}
	if _, newly := b.trigger.Poll(); newly {
		if g.Localization().State() == localization.SetCenterPos {
			errs = multierr.Append(errs, g.SetCenter())
		} else {
			g.Trigger()
		}
	}
	return errs
}
