// Package config loads the guide configuration from JSON.
package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"sailguide/core"
)

// Limits of the distance fault threshold
const (
	MinDistanceFaultMM = 5
	MaxDistanceFaultMM = 50
)

// Config is the complete guide configuration.
type Config struct {
	Drive  DriveConfig  `json:"drive"`
	Motor  MotorConfig  `json:"motor"`
	Guide  GuideConfig  `json:"guide"`
	Wind   WindConfig   `json:"wind"`
	Store  StoreConfig  `json:"store"`
	Pins   PinConfig    `json:"pins"`
	Sensor SensorConfig `json:"sensor"`
}

// DriveConfig is the spindle geometry.
type DriveConfig struct {
	DistancePerRotationMM float64 `json:"distance_per_rotation_mm"`
	PulsesPerRotation     uint16  `json:"pulses_per_rotation"`
}

// MotorConfig covers the motor controller, ramp and edge capture timer.
// The ramp has no defaults.
type MotorConfig struct {
	MaxRPM           uint16 `json:"max_rpm"`
	Inverted         bool   `json:"inverted"`
	RampStepRPM      uint16 `json:"ramp_step_rpm"`
	RampIntervalMS   uint32 `json:"ramp_interval_ms"`
	CaptureClockHz   uint32 `json:"capture_clock_hz"`
	CapturePrescaler uint32 `json:"capture_prescaler"`
	CapturePeriod    uint32 `json:"capture_period"` // 0: free-running 32-bit counter
}

// RampInterval returns the ramp step interval.
func (m MotorConfig) RampInterval() time.Duration {
	return time.Duration(m.RampIntervalMS) * time.Millisecond
}

// GuideConfig covers the control loop.
type GuideConfig struct {
	TickMS             uint32 `json:"tick_ms"`
	MaxDistanceFaultMM uint8  `json:"max_distance_fault_mm"`
	EndstopSamples     uint8  `json:"endstop_samples"`
}

// Tick returns the control tick period.
func (g GuideConfig) Tick() time.Duration {
	return time.Duration(g.TickMS) * time.Millisecond
}

// WindConfig covers the wind instrument.
type WindConfig struct {
	LimitMPS float64 `json:"limit_mps"`
	Baud     uint32  `json:"baud"`
}

// StoreConfig describes the SPI EEPROM.
type StoreConfig struct {
	SPIBus         uint8  `json:"spi_bus"`
	Size           int    `json:"size"`
	PageSize       int    `json:"page_size"`
	WriteTimeoutMS uint32 `json:"write_timeout_ms"`
	SPIRate        uint32 `json:"spi_rate"`
}

// WriteTimeout returns the bound on one EEPROM write cycle.
func (s StoreConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// Sensor sources
const (
	SourceAnalog  = "analog"
	SourceVL53L1X = "vl53l1x"
	SourceINA260  = "ina260"
)

// SensorConfig selects the sensors and scales the analog ones.
type SensorConfig struct {
	Distance            string `json:"distance"`
	Current             string `json:"current"`
	DistanceChannel     uint8  `json:"distance_channel"`
	CurrentChannel      uint8  `json:"current_channel"`
	DistanceFullScaleMM int32  `json:"distance_full_scale_mm"`
	DistanceOffsetMM    int32  `json:"distance_offset_mm"`
	CurrentFullScaleMA  int32  `json:"current_full_scale_ma"`
	Samples             uint8  `json:"samples"`
	TimeoutMS           uint32 `json:"timeout_ms"`
}

// Timeout returns the bound on one sensor sample.
func (s SensorConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// PinConfig names board pins as "gpioN".
type PinConfig struct {
	RotationA      string `json:"rotation_a"`
	RotationB      string `json:"rotation_b"`
	SpeedA         string `json:"speed_a"`
	SpeedB         string `json:"speed_b"`
	SpeedSetpoint  string `json:"speed_setpoint"`
	MotorFault     string `json:"motor_fault"`
	Readback       string `json:"readback"`
	Encoder        string `json:"encoder"`
	FrontEndstop   string `json:"front_endstop"`
	BackEndstop    string `json:"back_endstop"`
	ManualForward  string `json:"manual_forward"`
	ManualBackward string `json:"manual_backward"`
	TriggerButton  string `json:"trigger_button"`
	ErrorLED       string `json:"error_led"`
	LocalizedLED   string `json:"localized_led"`
	SailModeLED    string `json:"sail_mode_led"`
	AckLED         string `json:"ack_led"`
	EEPROMCS       string `json:"eeprom_cs"`
}

// Load parses a JSON configuration, fills in defaults and validates it.
func Load(jsonData []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in missing values
func applyDefaults(cfg *Config) {
	if cfg.Drive.DistancePerRotationMM == 0 {
		cfg.Drive.DistancePerRotationMM = 1.12
	}
	if cfg.Drive.PulsesPerRotation == 0 {
		cfg.Drive.PulsesPerRotation = 12
	}

	if cfg.Motor.MaxRPM == 0 {
		cfg.Motor.MaxRPM = 3000
	}
	if cfg.Motor.CaptureClockHz == 0 {
		cfg.Motor.CaptureClockHz = 1_000_000 // 1 MHz timer
	}
	if cfg.Motor.CapturePrescaler == 0 {
		cfg.Motor.CapturePrescaler = 1
	}

	if cfg.Guide.TickMS == 0 {
		cfg.Guide.TickMS = 10
	}
	if cfg.Guide.MaxDistanceFaultMM == 0 {
		cfg.Guide.MaxDistanceFaultMM = 10
	}
	cfg.Guide.MaxDistanceFaultMM = ClampDistanceFault(cfg.Guide.MaxDistanceFaultMM)
	if cfg.Guide.EndstopSamples == 0 {
		cfg.Guide.EndstopSamples = 3
	}

	if cfg.Wind.LimitMPS == 0 {
		cfg.Wind.LimitMPS = 20
	}
	if cfg.Wind.Baud == 0 {
		cfg.Wind.Baud = 4800 // NMEA 0183
	}

	if cfg.Store.Size == 0 {
		cfg.Store.Size = 32 * 1024 // 25LC256
	}
	if cfg.Store.PageSize == 0 {
		cfg.Store.PageSize = 64
	}
	if cfg.Store.WriteTimeoutMS == 0 {
		cfg.Store.WriteTimeoutMS = 10
	}
	if cfg.Store.SPIRate == 0 {
		cfg.Store.SPIRate = 1_000_000
	}

	if cfg.Sensor.Distance == "" {
		cfg.Sensor.Distance = SourceVL53L1X
	}
	if cfg.Sensor.Current == "" {
		cfg.Sensor.Current = SourceINA260
	}
	if cfg.Sensor.Samples == 0 {
		cfg.Sensor.Samples = 4
	}
	if cfg.Sensor.TimeoutMS == 0 {
		cfg.Sensor.TimeoutMS = 1000
	}
}

// ClampDistanceFault limits a distance fault threshold to 5..50 mm.
func ClampDistanceFault(mm uint8) uint8 {
	if mm < MinDistanceFaultMM {
		return MinDistanceFaultMM
	}
	if mm > MaxDistanceFaultMM {
		return MaxDistanceFaultMM
	}
	return mm
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var err error
	if c.Motor.RampStepRPM == 0 {
		err = multierr.Append(err, errors.New("motor.ramp_step_rpm is required"))
	}
	if c.Motor.RampIntervalMS == 0 {
		err = multierr.Append(err, errors.New("motor.ramp_interval_ms is required"))
	}
	if c.Drive.DistancePerRotationMM < 0 {
		err = multierr.Append(err, errors.New("drive.distance_per_rotation_mm must be positive"))
	}
	if c.Store.PageSize > c.Store.Size {
		err = multierr.Append(err, errors.Errorf("store.page_size %d larger than size %d", c.Store.PageSize, c.Store.Size))
	}
	if c.Wind.LimitMPS < 0 {
		err = multierr.Append(err, errors.New("wind.limit_mps must be positive"))
	}
	if s := c.Sensor.Distance; s != SourceVL53L1X && s != SourceAnalog {
		err = multierr.Append(err, errors.Errorf("sensor.distance %q: expected %s or %s", s, SourceVL53L1X, SourceAnalog))
	}
	if s := c.Sensor.Current; s != SourceINA260 && s != SourceAnalog {
		err = multierr.Append(err, errors.Errorf("sensor.current %q: expected %s or %s", s, SourceINA260, SourceAnalog))
	}
	if c.Sensor.Distance == SourceAnalog && c.Sensor.DistanceFullScaleMM <= 0 {
		err = multierr.Append(err, errors.New("sensor.distance_full_scale_mm is required for an analog distance sensor"))
	}
	if c.Sensor.Current == SourceAnalog && c.Sensor.CurrentFullScaleMA <= 0 {
		err = multierr.Append(err, errors.New("sensor.current_full_scale_ma is required for an analog current sensor"))
	}
	for name, pin := range c.Pins.named() {
		if pin == "" {
			continue
		}
		if _, perr := ParsePin(pin); perr != nil {
			err = multierr.Append(err, errors.Wrapf(perr, "pins.%s", name))
		}
	}
	return err
}

func (p PinConfig) named() map[string]string {
	return map[string]string{
		"rotation_a":      p.RotationA,
		"rotation_b":      p.RotationB,
		"speed_a":         p.SpeedA,
		"speed_b":         p.SpeedB,
		"speed_setpoint":  p.SpeedSetpoint,
		"motor_fault":     p.MotorFault,
		"readback":        p.Readback,
		"encoder":         p.Encoder,
		"front_endstop":   p.FrontEndstop,
		"back_endstop":    p.BackEndstop,
		"manual_forward":  p.ManualForward,
		"manual_backward": p.ManualBackward,
		"trigger_button":  p.TriggerButton,
		"error_led":       p.ErrorLED,
		"localized_led":   p.LocalizedLED,
		"sail_mode_led":   p.SailModeLED,
		"ack_led":         p.AckLED,
		"eeprom_cs":       p.EEPROMCS,
	}
}

// ParsePin converts "gpioN" to a pin number.
func ParsePin(name string) (core.GPIOPin, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(s, "gpio") {
		return 0, errors.Errorf("pin %q: expected gpioN", name)
	}
	n, err := strconv.ParseUint(s[len("gpio"):], 10, 8)
	if err != nil {
		return 0, errors.Errorf("pin %q: bad number", name)
	}
	return core.GPIOPin(n), nil
}
