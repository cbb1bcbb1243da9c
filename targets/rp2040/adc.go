//go:build rp2040

package main

import (
	"device/rp"
	"machine"

	"github.com/pkg/errors"

	"sailguide/core"
)

// External ADC inputs 0-3 sit on GPIO26-GPIO29
var adcPins = [...]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}

// RPADCDriver implements core.ADCDriver with one-shot conversions started on
// one call and collected on a later one, so a sensor never spins inside the
// driver.
type RPADCDriver struct {
	configured [len(adcPins)]bool
	busy       bool
	channel    core.ADCChannelID // channel of the conversion in flight
}

// NewRPADCDriver enables the ADC block.
func NewRPADCDriver() *RPADCDriver {
	machine.InitADC()
	return &RPADCDriver{}
}

// ConfigureChannel switches the channel's pin to analog input.
func (d *RPADCDriver) ConfigureChannel(ch core.ADCChannelID) error {
	if int(ch) >= len(adcPins) {
		return errors.Errorf("adc channel %d: unsupported", ch)
	}
	adc := machine.ADC{Pin: adcPins[ch]}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return errors.Wrapf(err, "adc channel %d", ch)
	}
	d.configured[ch] = true
	return nil
}

// ReadRaw starts a conversion on ch or collects the one already running.
// Only one channel converts at a time. A finished conversion nobody collected
// is dropped when another channel asks.
func (d *RPADCDriver) ReadRaw(ch core.ADCChannelID) (core.ADCValue, bool, error) {
	if int(ch) >= len(adcPins) || !d.configured[ch] {
		return 0, false, errors.Errorf("adc channel %d: not configured", ch)
	}

	if d.busy {
		if !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
			return 0, false, nil
		}
		d.busy = false
		if d.channel == ch {
			return core.ADCValue(rp.ADC.RESULT.Get() & core.ADCMax), true, nil
		}
	}

	rp.ADC.CS.ReplaceBits(uint32(ch)<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	d.busy = true
	d.channel = ch
	return 0, false, nil
}
