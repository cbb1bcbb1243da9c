// Endstop handling for GPIO-based limit switches
package core

// Endstop flags
const (
	ESF_PIN_HIGH  = 1 << 0 // Expected pin state when triggered (1=high, 0=low)
	ESF_TRIGGERED = 1 << 1 // Trigger confirmed by oversampling
)

// Endstop represents a limit switch sampled once per control tick. A trigger is
// confirmed only after SampleCount consecutive matching samples, so contact
// bounce never produces a spurious stop.
type Endstop struct {
	Name         string
	Pin          GPIOPin // GPIO pin for endstop input
	Flags        uint8   // State flags (ESF_*)
	SampleCount  uint8   // Number of consecutive samples required
	TriggerCount uint8   // Remaining samples before trigger

	gpio GPIODriver
}

// EndstopConfig describes one limit switch.
type EndstopConfig struct {
	Name        string
	Pin         GPIOPin
	PullUp      bool
	TriggerHigh bool  // pin level that means "at the limit"
	SampleCount uint8 // consecutive samples to confirm, minimum 1
}

// NewEndstop configures the pin and returns an idle endstop.
func NewEndstop(gpio GPIODriver, cfg EndstopConfig) (*Endstop, error) {
	var err error
	if cfg.PullUp {
		err = gpio.ConfigureInputPullUp(cfg.Pin)
	} else {
		err = gpio.ConfigureInputPullDown(cfg.Pin)
	}
	if err != nil {
		return nil, err
	}

	count := cfg.SampleCount
	if count == 0 {
		count = 1
	}

	es := &Endstop{
		Name:         cfg.Name,
		Pin:          cfg.Pin,
		SampleCount:  count,
		TriggerCount: count,
		gpio:         gpio,
	}
	if cfg.TriggerHigh {
		es.Flags |= ESF_PIN_HIGH
	}
	return es, nil
}

// Poll samples the pin once. It returns whether the endstop is (confirmed)
// triggered and whether this sample is the one that confirmed it.
func (es *Endstop) Poll() (triggered, newly bool) {
	pinHigh := es.gpio.ReadPin(es.Pin)

	// Check if pin matches expected trigger state
	expectHigh := (es.Flags & ESF_PIN_HIGH) != 0
	match := pinHigh == expectHigh

	if !match {
		// Released - rearm the oversampling counter
		es.TriggerCount = es.SampleCount
		es.Flags &^= ESF_TRIGGERED
		return false, false
	}

	if es.Flags&ESF_TRIGGERED != 0 {
		return true, false
	}

	es.TriggerCount--
	if es.TriggerCount == 0 {
		// All samples confirmed - trigger!
		es.Flags |= ESF_TRIGGERED
		return true, true
	}
	return false, false
}

// Triggered reports the last confirmed state without sampling.
func (es *Endstop) Triggered() bool {
	return es.Flags&ESF_TRIGGERED != 0
}
