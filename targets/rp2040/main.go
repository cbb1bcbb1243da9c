//go:build rp2040

// Command rp2040 is the guide firmware for RP2040 boards. It wires the
// drivers to the guide, serves the host link over USB CDC and runs the
// control tick from a cooperative main loop.
package main

import (
	"context"
	_ "embed"
	"machine"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sailguide/config"
	"sailguide/core"
	"sailguide/guide"
	"sailguide/link"
	"sailguide/localization"
	"sailguide/motor"
	"sailguide/protocol"
	"sailguide/sensor"
	"sailguide/store"
)

//go:embed board.json
var boardConfig []byte

// firmware is everything the main loop touches
type firmware struct {
	logger  *zap.SugaredLogger
	guide   *guide.Guide
	link    *link.Link
	sched   *core.Scheduler
	capture *edgeCapture
	panel   buttons

	wind     *sensor.WindMonitor
	windUART *machine.UART
	windBuf  []byte

	input   *protocol.FifoBuffer
	usb     usbPort
	dropped uint32 // edge capture overruns already reported
}

func main() {
	// Clear any watchdog state left over from before the reset
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	logger := core.NewLogger(InitDebugUART(), zapcore.InfoLevel)

	ctx := context.Background()
	fw, err := setup(ctx, logger)
	if err != nil {
		logger.Errorw("setup failed", "error", err)
		halted()
	}
	fw.run(ctx)
}

// halted blinks the on-board LED forever
func halted() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.Set(!led.Get())
		time.Sleep(250 * time.Millisecond)
	}
}

// boardPins are the parsed pin assignments
type boardPins struct {
	motor     motor.Pins
	encoder   core.GPIOPin
	front     core.GPIOPin
	back      core.GPIOPin
	eepromCS  core.GPIOPin
	hasEEPROM bool
}

func parsePins(p config.PinConfig) (boardPins, error) {
	var (
		pins boardPins
		errs error
	)
	pin := func(name, value string) core.GPIOPin {
		n, err := config.ParsePin(value)
		errs = multierr.Append(errs, errors.Wrapf(err, "pins.%s", name))
		return n
	}
	pins.motor = motor.Pins{
		Rotation:      [2]core.GPIOPin{pin("rotation_a", p.RotationA), pin("rotation_b", p.RotationB)},
		Speed:         [2]core.GPIOPin{pin("speed_a", p.SpeedA), pin("speed_b", p.SpeedB)},
		SpeedSetpoint: pin("speed_setpoint", p.SpeedSetpoint),
		Fault:         pin("motor_fault", p.MotorFault),
		Readback:      pin("readback", p.Readback),
	}
	pins.encoder = pin("encoder", p.Encoder)
	pins.front = pin("front_endstop", p.FrontEndstop)
	pins.back = pin("back_endstop", p.BackEndstop)
	if p.EEPROMCS != "" {
		pins.eepromCS = pin("eeprom_cs", p.EEPROMCS)
		pins.hasEEPROM = true
	}
	return pins, errs
}

func setup(ctx context.Context, logger *zap.SugaredLogger) (*firmware, error) {
	cfg, err := config.Load(boardConfig)
	if err != nil {
		return nil, err
	}
	pins, err := parsePins(cfg.Pins)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	gpio := NewRPGPIODriver()

	st, err := openStore(cfg, pins, clk, logger)
	if err != nil {
		return nil, err
	}
	snap, ok, err := guide.LoadSnapshot(ctx, st)
	if err != nil {
		logger.Warnw("no usable snapshot, full calibration needed", "error", err)
	}

	loc, err := localization.New(localization.Config{
		DistancePerRotationMM: cfg.Drive.DistancePerRotationMM,
		PulsesPerRotation:     cfg.Drive.PulsesPerRotation,
	}, snap, ok, logger.Named("localization"))
	if err != nil {
		return nil, err
	}

	m, err := motor.New(motor.Config{
		Pins:     pins.motor,
		Inverted: cfg.Motor.Inverted,
		MaxRPM:   cfg.Motor.MaxRPM,
		Capture: motor.CaptureConfig{
			ClockHz:           cfg.Motor.CaptureClockHz,
			Prescaler:         cfg.Motor.CapturePrescaler,
			Period:            cfg.Motor.CapturePeriod,
			PulsesPerRotation: cfg.Drive.PulsesPerRotation,
		},
		Ramp: motor.RampConfig{
			StepRPM:      cfg.Motor.RampStepRPM,
			StepInterval: cfg.Motor.RampInterval(),
		},
	}, gpio, NewPWMAnalogOut(), clk, logger.Named("motor"))
	if err != nil {
		return nil, err
	}

	endstop := func(name string, pin core.GPIOPin) (*core.Endstop, error) {
		// Switches close to ground
		return core.NewEndstop(gpio, core.EndstopConfig{
			Name:        name,
			Pin:         pin,
			PullUp:      true,
			SampleCount: cfg.Guide.EndstopSamples,
		})
	}
	front, err := endstop("front", pins.front)
	if err != nil {
		return nil, errors.Wrap(err, "front endstop")
	}
	back, err := endstop("back", pins.back)
	if err != nil {
		return nil, errors.Wrap(err, "back endstop")
	}

	dist, curr, err := openSensors(cfg.Sensor, clk)
	if err != nil {
		return nil, err
	}

	leds, err := openIndicators(gpio, cfg.Pins)
	if err != nil {
		return nil, err
	}

	g, err := guide.New(ctx, guide.Deps{
		Motor:        m,
		Localization: loc,
		Front:        front,
		Back:         back,
		Distance:     dist,
		Current:      curr,
		Store:        st,
		Indicators:   leds,
		Clock:        clk,
	}, guide.Config{
		DistancePerRotationMM: cfg.Drive.DistancePerRotationMM,
		MaxDistanceFaultMM:    cfg.Guide.MaxDistanceFaultMM,
	}, logger.Named("guide"))
	if err != nil {
		return nil, err
	}

	capture, err := newEdgeCapture(machine.Pin(pins.encoder), cfg.Motor.CaptureClockHz/cfg.Motor.CapturePrescaler)
	if err != nil {
		return nil, err
	}

	fw := &firmware{
		logger:  logger,
		guide:   g,
		link:    link.New(g, logger.Named("link")),
		sched:   core.NewScheduler(clk),
		capture: capture,
		input:   protocol.NewFifoBuffer(256),
		windBuf: make([]byte, 0, 64),
	}

	if fw.panel, err = openButtons(gpio, cfg); err != nil {
		return nil, err
	}
	if err := fw.openWind(cfg.Wind); err != nil {
		return nil, err
	}

	fw.sched.Every("guide", cfg.Guide.Tick(), func() error { return fw.tick(ctx) }, fw.taskFailed)
	logger.Infow("firmware ready", "tick", cfg.Guide.Tick(), "commands", fw.link.Registry().Count())
	return fw, nil
}

func openStore(cfg *config.Config, pins boardPins, clk clock.Clock, logger *zap.SugaredLogger) (store.Store, error) {
	if !pins.hasEEPROM {
		logger.Warnw("no eeprom configured, position is lost on power loss")
		return store.NewMemory(cfg.Store.Size), nil
	}
	st, err := store.NewEEPROM(NewRP2040SPIDriver(), store.EEPROMConfig{
		Bus: core.SPIConfig{
			BusID: core.SPIBusID(cfg.Store.SPIBus),
			Rate:  cfg.Store.SPIRate,
			CS:    pins.eepromCS,
		},
		Size:         cfg.Store.Size,
		PageSize:     cfg.Store.PageSize,
		WriteTimeout: cfg.Store.WriteTimeout(),
	}, clk, logger.Named("eeprom"))
	if err != nil {
		return nil, errors.Wrap(err, "eeprom")
	}
	return st, nil
}

func openSensors(cfg config.SensorConfig, clk clock.Clock) (sensor.Distance, sensor.Current, error) {
	var adc *RPADCDriver
	analog := func(ch uint8, fullScale, offset int32) (*sensor.Analog, error) {
		if adc == nil {
			adc = NewRPADCDriver()
		}
		return sensor.NewAnalog(adc, sensor.AnalogConfig{
			Channel:   core.ADCChannelID(ch),
			Samples:   cfg.Samples,
			FullScale: fullScale,
			Offset:    offset,
			Timeout:   cfg.Timeout(),
		}, clk)
	}

	if cfg.Distance == config.SourceVL53L1X || cfg.Current == config.SourceINA260 {
		err := machine.I2C0.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz})
		if err != nil {
			return nil, nil, errors.Wrap(err, "i2c0")
		}
	}

	var (
		dist sensor.Distance
		curr sensor.Current
		err  error
	)
	if cfg.Distance == config.SourceAnalog {
		dist, err = analog(cfg.DistanceChannel, cfg.DistanceFullScaleMM, cfg.DistanceOffsetMM)
	} else {
		dist, err = newTOFDistance(machine.I2C0, cfg.DistanceOffsetMM, cfg.Timeout(), clk)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "distance sensor")
	}
	if cfg.Current == config.SourceAnalog {
		curr, err = analog(cfg.CurrentChannel, cfg.CurrentFullScaleMA, 0)
	} else {
		curr, err = newPowerCurrent(machine.I2C0)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "current sensor")
	}
	return dist, curr, nil
}

func openIndicators(gpio core.GPIODriver, p config.PinConfig) (guide.Indicators, error) {
	var (
		leds guide.Indicators
		errs error
	)
	open := func(name, value string) *core.Indicator {
		if value == "" {
			return nil
		}
		pin, err := config.ParsePin(value)
		if err != nil {
			errs = multierr.Append(errs, err)
			return nil
		}
		led, err := core.NewIndicator(gpio, pin)
		errs = multierr.Append(errs, errors.Wrapf(err, "%s led", name))
		return led
	}
	leds.Error = open("error", p.ErrorLED)
	leds.Localized = open("localized", p.LocalizedLED)
	leds.SailMode = open("sail mode", p.SailModeLED)
	leds.Ack = open("ack", p.AckLED)
	return leds, errs
}

func openButtons(gpio core.GPIODriver, cfg *config.Config) (buttons, error) {
	var (
		panel buttons
		errs  error
	)
	open := func(name, value string) *core.Endstop {
		if value == "" {
			return nil
		}
		pin, err := config.ParsePin(value)
		if err != nil {
			errs = multierr.Append(errs, err)
			return nil
		}
		b, err := core.NewEndstop(gpio, core.EndstopConfig{
			Name:        name,
			Pin:         pin,
			PullUp:      true,
			SampleCount: cfg.Guide.EndstopSamples,
		})
		errs = multierr.Append(errs, errors.Wrapf(err, "%s button", name))
		return b
	}
	if b := open("forward", cfg.Pins.ManualForward); b != nil {
		panel.jogs = append(panel.jogs, &jogButton{button: b, movement: localization.Forward})
	}
	if b := open("backward", cfg.Pins.ManualBackward); b != nil {
		panel.jogs = append(panel.jogs, &jogButton{button: b, movement: localization.Backward})
	}
	panel.trigger = open("trigger", cfg.Pins.TriggerButton)
	return panel, errs
}

// openWind listens for the wind instrument on UART1 (GPIO20 TX, GPIO21 RX).
func (f *firmware) openWind(cfg config.WindConfig) error {
	f.windUART = machine.UART1
	err := f.windUART.Configure(machine.UARTConfig{
		BaudRate: cfg.Baud,
		TX:       machine.GPIO20,
		RX:       machine.GPIO21,
	})
	if err != nil {
		return errors.Wrap(err, "wind uart")
	}
	f.wind = sensor.NewWindMonitor(cfg.LimitMPS, func(mps float64) {
		if err := f.guide.SetError(guide.WindSpeedFault); err != nil {
			f.logger.Warnw("raise wind fault", "error", err)
		}
	}, f.logger.Named("wind"))
	return nil
}

// tick is the periodic control task
func (f *firmware) tick(ctx context.Context) error {
	errs := f.panel.poll(f.guide)
	_, err := f.guide.Update(ctx)
	errs = multierr.Append(errs, err)

	if f.capture.dropped != f.dropped {
		f.logger.Warnw("encoder edges dropped", "overruns", f.capture.dropped)
		f.dropped = f.capture.dropped
	}
	return errs
}

func (f *firmware) taskFailed(name string, err error) {
	for _, e := range multierr.Errors(err) {
		f.logger.Warnw("task error", "task", name, "error", e)
	}
}

// run is the main loop. It never returns.
func (f *firmware) run(ctx context.Context) {
	for {
		f.step(ctx)
		time.Sleep(10 * time.Microsecond)
	}
}

func (f *firmware) step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			// Drop whatever was in flight and keep the loop alive
			f.logger.Errorw("main loop panic", "panic", r)
			f.input.Reset()
		}
	}()

	f.capture.Drain(f.guide.HandleEdge)
	f.serviceUSB(ctx)
	f.serviceWind()
	f.sched.Dispatch()
}

func (f *firmware) serviceUSB(ctx context.Context) {
	for USBAvailable() > 0 && f.input.Free() > 0 {
		b, err := USBRead()
		if err != nil {
			break
		}
		f.input.Write([]byte{b})
	}

	if f.input.Available() > 0 {
		data := f.input.Data()
		in := protocol.NewSliceInputBuffer(data)
		f.link.Receive(ctx, in)
		if consumed := len(data) - in.Available(); consumed > 0 {
			f.input.Pop(consumed)
		}
	}

	if err := f.link.Flush(&f.usb); err != nil {
		f.logger.Debugw("usb", "error", err)
		if f.usb.failures > 10 {
			// Host went away; start clean when it comes back
			f.input.Reset()
			f.link.Reset()
			f.usb.failures = 0
		}
	}
}

func (f *firmware) serviceWind() {
	f.windBuf = f.windBuf[:0]
	for f.windUART.Buffered() > 0 && len(f.windBuf) < cap(f.windBuf) {
		b, err := f.windUART.ReadByte()
		if err != nil {
			break
		}
		f.windBuf = append(f.windBuf, b)
	}
	if len(f.windBuf) > 0 {
		f.wind.Feed(f.windBuf)
	}
}
