package config

import (
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"sailguide/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(`{"motor": {"ramp_step_rpm": 250, "ramp_interval_ms": 20}}`))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, cfg.Drive.DistancePerRotationMM, test.ShouldEqual, 1.12)
	test.That(t, cfg.Drive.PulsesPerRotation, test.ShouldEqual, uint16(12))
	test.That(t, cfg.Motor.MaxRPM, test.ShouldEqual, uint16(3000))
	test.That(t, cfg.Motor.RampInterval(), test.ShouldEqual, 20*time.Millisecond)
	test.That(t, cfg.Guide.Tick(), test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.Guide.MaxDistanceFaultMM, test.ShouldEqual, uint8(10))
	test.That(t, cfg.Store.WriteTimeout(), test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.Sensor.Timeout(), test.ShouldEqual, time.Second)
	test.That(t, cfg.Sensor.Distance, test.ShouldEqual, SourceVL53L1X)
	test.That(t, cfg.Sensor.Current, test.ShouldEqual, SourceINA260)
}

func TestLoadRequiresRamp(t *testing.T) {
	_, err := Load([]byte(`{}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "ramp_step_rpm")
	test.That(t, err.Error(), test.ShouldContainSubstring, "ramp_interval_ms")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"syntax", `{"motor":`, "parse config"},
		{"bad pin", `{"motor": {"ramp_step_rpm": 1, "ramp_interval_ms": 1}, "pins": {"error_led": "pa3"}}`, "pins.error_led"},
		{"unknown distance sensor", `{"motor": {"ramp_step_rpm": 1, "ramp_interval_ms": 1}, "sensor": {"distance": "sonar"}}`, "sensor.distance"},
		{"analog current unscaled", `{"motor": {"ramp_step_rpm": 1, "ramp_interval_ms": 1}, "sensor": {"current": "analog"}}`, "current_full_scale_ma"},
		{"page larger than store", `{"motor": {"ramp_step_rpm": 1, "ramp_interval_ms": 1}, "store": {"size": 32, "page_size": 64}}`, "page_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.json))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.want)
		})
	}
}

func TestClampDistanceFault(t *testing.T) {
	test.That(t, ClampDistanceFault(1), test.ShouldEqual, uint8(5))
	test.That(t, ClampDistanceFault(5), test.ShouldEqual, uint8(5))
	test.That(t, ClampDistanceFault(20), test.ShouldEqual, uint8(20))
	test.That(t, ClampDistanceFault(200), test.ShouldEqual, uint8(50))

	cfg, err := Load([]byte(`{"motor": {"ramp_step_rpm": 1, "ramp_interval_ms": 1}, "guide": {"max_distance_fault_mm": 90}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Guide.MaxDistanceFaultMM, test.ShouldEqual, uint8(50))
}

func TestParsePin(t *testing.T) {
	pin, err := ParsePin("GPIO17")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pin, test.ShouldEqual, core.GPIOPin(17))

	for _, bad := range []string{"", "17", "gpio", "gpio-1", "gpio300"} {
		_, err := ParsePin(bad)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, strings.Contains(err.Error(), "pin"), test.ShouldBeTrue)
	}
}
