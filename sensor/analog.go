package sensor

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"sailguide/core"
)

// AnalogConfig maps an ADC channel to engineering units:
// value = Offset + raw * FullScale / ADCMax.
type AnalogConfig struct {
	Channel   core.ADCChannelID
	Samples   uint8 // readings averaged per sample, minimum 1
	FullScale int32
	Offset    int32
	Timeout   time.Duration // zero means DefaultTimeout
}

// Analog is an ADC backed sensor. It serves as Distance (units of mm) or
// Current (units of mA) depending on its scaling.
type Analog struct {
	adc   core.ADCDriver
	cfg   AnalogConfig
	clock clock.Clock
}

// NewAnalog configures the channel.
func NewAnalog(adc core.ADCDriver, cfg AnalogConfig, clk clock.Clock) (*Analog, error) {
	if cfg.Samples == 0 {
		cfg.Samples = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := adc.ConfigureChannel(cfg.Channel); err != nil {
		return nil, errors.Wrapf(err, "configure adc channel %d", cfg.Channel)
	}
	return &Analog{adc: adc, cfg: cfg, clock: clk}, nil
}

// Sample averages cfg.Samples conversions and scales the result.
func (a *Analog) Sample(ctx context.Context) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ctx, cancel := a.clock.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var sum uint32
	for i := uint8(0); i < a.cfg.Samples; i++ {
		raw, err := a.read(ctx)
		if err != nil {
			return 0, err
		}
		sum += uint32(raw)
	}
	avg := float64(sum) / float64(a.cfg.Samples)
	return a.cfg.Offset + int32(math.Round(avg*float64(a.cfg.FullScale)/core.ADCMax)), nil
}

func (a *Analog) read(ctx context.Context) (core.ADCValue, error) {
	for {
		raw, ready, err := a.adc.ReadRaw(a.cfg.Channel)
		if err != nil {
			return 0, errors.Wrapf(err, "adc channel %d", a.cfg.Channel)
		}
		if ready {
			return raw, nil
		}
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, errors.Wrapf(ErrTimeout, "adc channel %d", a.cfg.Channel)
			}
			return 0, ctx.Err()
		}
		runtime.Gosched()
	}
}

// SampleMM implements Distance.
func (a *Analog) SampleMM(ctx context.Context) (int32, error) {
	return a.Sample(ctx)
}

// SampleMA implements Current.
func (a *Analog) SampleMA(ctx context.Context) (int32, error) {
	return a.Sample(ctx)
}
