package motor

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// CaptureConfig describes the edge capture timer.
type CaptureConfig struct {
	ClockHz           uint32 // timer peripheral clock
	Prescaler         uint32
	Period            uint32 // counter wraps after Period counts; 0 for a free-running 32-bit counter
	PulsesPerRotation uint16
}

// Validate rejects configurations that would divide by zero.
func (c CaptureConfig) Validate() error {
	if c.ClockHz == 0 || c.Prescaler == 0 || c.PulsesPerRotation == 0 {
		return errors.Errorf("capture config incomplete: %+v", c)
	}
	return nil
}

// capture holds the RPM measurement state. Only CaptureEdge writes it.
type capture struct {
	t1       atomic.Uint32
	captured atomic.Bool
	rpm      atomic.Float64
}

// CaptureEdge is called from the edge interrupt with the timer count of the
// edge. Edges are consumed in pairs: the first stores its timestamp, the
// second yields an RPM value.
func (m *Motor) CaptureEdge(ts uint32) {
	c := &m.capture
	if !c.captured.Load() {
		c.t1.Store(ts)
		c.captured.Store(true)
		return
	}
	c.captured.Store(false)

	cfg := m.cfg.Capture
	period := uint64(cfg.Period)
	if period == 0 {
		period = 1 << 32
	}
	t1 := uint64(c.t1.Load())
	var delta uint64
	if uint64(ts) > t1 {
		delta = uint64(ts) - t1
	} else {
		// Counter wrapped between the edges
		delta = period - t1 + uint64(ts)
	}

	freq := float64(cfg.ClockHz) / float64(cfg.Prescaler) / float64(delta)
	c.rpm.Store(freq / float64(cfg.PulsesPerRotation) * 60)
}

// RPM returns the last measured speed.
func (m *Motor) RPM() float64 {
	return m.capture.rpm.Load()
}
