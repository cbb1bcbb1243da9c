package guide

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"sailguide/core"
	"sailguide/core/fake"
	"sailguide/localization"
	"sailguide/motor"
	"sailguide/store"
)

const (
	pinFront core.GPIOPin = 10
	pinBack  core.GPIOPin = 11
	ledError core.GPIOPin = 20
	ledLoc   core.GPIOPin = 21
	ledSail  core.GPIOPin = 22
	ledAck   core.GPIOPin = 23
)

var motorPins = motor.Pins{
	Rotation:      [2]core.GPIOPin{2, 3},
	Speed:         [2]core.GPIOPin{4, 5},
	SpeedSetpoint: 6,
	Fault:         7,
	FaultActive:   true,
	Readback:      8,
}

// centered is a completed calibration at the middle of 28 mm of travel.
var centered = localization.Snapshot{
	State:         localization.CenterPosSet,
	PulseCount:    150,
	EndPosMM:      14,
	StartPosAbsMM: 100,
}

type fakeDistance struct {
	mm  int32
	err error
}

func (f *fakeDistance) SampleMM(ctx context.Context) (int32, error) {
	return f.mm, f.err
}

type fakeCurrent struct {
	ma  int32
	err error
}

func (f *fakeCurrent) SampleMA(ctx context.Context) (int32, error) {
	return f.ma, f.err
}

// countingStore counts snapshot writes.
type countingStore struct {
	*store.Memory
	snapshotWrites int
}

func (c *countingStore) Write(ctx context.Context, offset int, b []byte) error {
	if offset == store.SnapshotOffset {
		c.snapshotWrites++
	}
	return c.Memory.Write(ctx, offset, b)
}

type harness struct {
	g      *Guide
	gpio   *fake.GPIO
	analog *fake.AnalogOut
	clk    *clock.Mock
	dist   *fakeDistance
	curr   *fakeCurrent
	st     *countingStore
	motor  *motor.Motor
	loc    *localization.Localization
}

func newHarnessWithStore(t *testing.T, snap localization.Snapshot, ok bool, mem *store.Memory) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	h := &harness{
		gpio:   fake.NewGPIO(),
		analog: fake.NewAnalogOut(),
		clk:    clock.NewMock(),
		dist:   &fakeDistance{mm: 114},
		curr:   &fakeCurrent{},
		st:     &countingStore{Memory: mem},
	}

	var err error
	h.motor, err = motor.New(motor.Config{
		Pins:   motorPins,
		MaxRPM: 3000,
		Capture: motor.CaptureConfig{
			ClockHz: 1_000_000, Prescaler: 1, Period: 1 << 16, PulsesPerRotation: 12,
		},
		Ramp: motor.RampConfig{StepRPM: 1000, StepInterval: 10 * time.Millisecond},
	}, h.gpio, h.analog, h.clk, logger)
	test.That(t, err, test.ShouldBeNil)

	h.loc, err = localization.New(localization.Config{DistancePerRotationMM: 1.12, PulsesPerRotation: 12}, snap, ok, logger)
	test.That(t, err, test.ShouldBeNil)

	front, err := core.NewEndstop(h.gpio, core.EndstopConfig{Name: "front", Pin: pinFront, TriggerHigh: true, SampleCount: 1})
	test.That(t, err, test.ShouldBeNil)
	back, err := core.NewEndstop(h.gpio, core.EndstopConfig{Name: "back", Pin: pinBack, TriggerHigh: true, SampleCount: 1})
	test.That(t, err, test.ShouldBeNil)

	var leds Indicators
	for pin, led := range map[core.GPIOPin]**core.Indicator{
		ledError: &leds.Error, ledLoc: &leds.Localized, ledSail: &leds.SailMode, ledAck: &leds.Ack,
	} {
		*led, err = core.NewIndicator(h.gpio, pin)
		test.That(t, err, test.ShouldBeNil)
	}

	h.g, err = New(context.Background(), Deps{
		Motor:        h.motor,
		Localization: h.loc,
		Front:        front,
		Back:         back,
		Distance:     h.dist,
		Current:      h.curr,
		Store:        h.st,
		Indicators:   leds,
		Clock:        h.clk,
	}, Config{DistancePerRotationMM: 1.12, MaxDistanceFaultMM: 10}, logger)
	test.That(t, err, test.ShouldBeNil)
	return h
}

func newHarness(t *testing.T, snap localization.Snapshot, ok bool) *harness {
	return newHarnessWithStore(t, snap, ok, store.NewMemory(256))
}

// edges feeds n encoder edges through the interrupt entry point.
func (h *harness) edges(n int) {
	for i := 0; i < n; i++ {
		h.g.HandleEdge(uint32(i * 500))
	}
}

// syncDistance makes the absolute sensor agree with the pulse count.
func (h *harness) syncDistance() {
	h.dist.mm = h.loc.StartPosAbsMM() + int32(math.Round(h.loc.PulsesToDistance(h.loc.PulseCount())))
}

// move feeds n encoder edges in direction m and keeps the sensor in step.
func (h *harness) move(m localization.Movement, n int) {
	h.loc.SetMovement(m)
	h.edges(n)
	h.syncDistance()
}

func (h *harness) tick(t *testing.T) TickResult {
	t.Helper()
	res, err := h.g.Update(context.Background())
	test.That(t, err, test.ShouldBeNil)
	return res
}

// tickUntil advances the clock one ramp interval per tick until cond holds.
func (h *harness) tickUntil(t *testing.T, max int, cond func() bool) {
	t.Helper()
	for i := 0; i < max; i++ {
		if cond() {
			return
		}
		h.clk.Add(10 * time.Millisecond)
		h.tick(t)
	}
	test.That(t, cond(), test.ShouldBeTrue)
}

func (h *harness) rotation() [2]bool {
	return [2]bool{h.gpio.ReadPin(motorPins.Rotation[0]), h.gpio.ReadPin(motorPins.Rotation[1])}
}

func (h *harness) snapshot(t *testing.T) localization.Snapshot {
	t.Helper()
	snap, ok, err := LoadSnapshot(context.Background(), h.st)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	return snap
}

// sweep runs a fresh calibration through both endstops and leaves the guide
// in ApproachCenter at the back end of 28 mm of travel.
func (h *harness) sweep(t *testing.T) {
	t.Helper()
	h.g.Trigger()
	h.tick(t)
	h.dist.mm = 100
	h.gpio.Drive(pinFront, true)
	h.tick(t)
	h.gpio.Drive(pinFront, false)
	h.edges(300)
	h.gpio.Drive(pinBack, true)
	h.tick(t)
	h.gpio.Drive(pinBack, false)
	test.That(t, h.loc.State(), test.ShouldEqual, localization.ApproachCenter)
	test.That(t, h.loc.EndPosMM(), test.ShouldEqual, 14)
}
