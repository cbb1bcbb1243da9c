//go:build rp2040

package main

import (
	"context"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ina260"
	"tinygo.org/x/drivers/vl53l1x"

	"sailguide/sensor"
)

// vl53l1x reports out-of-range targets at or above this reading
const tofOutOfRange = 8190

// tofDistance is a sensor.Distance on a VL53L1X time-of-flight sensor
// ranging continuously.
type tofDistance struct {
	dev      vl53l1x.Device
	offsetMM int32
	timeout  time.Duration
	clock    clock.Clock
}

func newTOFDistance(bus drivers.I2C, offsetMM int32, timeout time.Duration, clk clock.Clock) (*tofDistance, error) {
	dev := vl53l1x.New(bus)
	if !dev.Configure(true) {
		return nil, errors.New("vl53l1x: no response")
	}
	dev.SetDistanceMode(vl53l1x.Long)
	dev.SetMeasurementTimingBudget(50000)
	dev.StartContinuous(50)
	return &tofDistance{dev: dev, offsetMM: offsetMM, timeout: timeout, clock: clk}, nil
}

// SampleMM waits for the next ranging result.
func (d *tofDistance) SampleMM(ctx context.Context) (int32, error) {
	ctx, cancel := d.clock.WithTimeout(ctx, d.timeout)
	defer cancel()
	for {
		// Non-blocking read returns 0 until a new range is ready
		mm := d.dev.Read(false)
		switch {
		case mm >= tofOutOfRange:
			return 0, errors.Errorf("vl53l1x: out of range (%d)", mm)
		case mm > 0:
			return d.offsetMM + int32(mm), nil
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return 0, errors.Wrap(sensor.ErrTimeout, "vl53l1x")
			}
			return 0, err
		}
		runtime.Gosched()
	}
}

// powerCurrent is a sensor.Current on an INA260 power monitor in the motor
// supply.
type powerCurrent struct {
	dev ina260.Device
}

func newPowerCurrent(bus drivers.I2C) (*powerCurrent, error) {
	dev := ina260.New(bus)
	if !dev.Connected() {
		return nil, errors.New("ina260: no response")
	}
	dev.Configure(ina260.Config{
		AverageMode:     ina260.AVGMODE_16,
		VoltConvTime:    ina260.CONVTIME_1100USEC,
		CurrentConvTime: ina260.CONVTIME_1100USEC,
		Mode:            ina260.MODE_CONTINUOUS | ina260.MODE_VOLTAGE | ina260.MODE_CURRENT,
	})
	return &powerCurrent{dev: dev}, nil
}

// SampleMA returns the magnitude of the last averaged conversion.
func (c *powerCurrent) SampleMA(ctx context.Context) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ua := c.dev.Current()
	if ua < 0 {
		ua = -ua
	}
	return ua / 1000, nil
}
