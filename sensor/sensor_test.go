package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"sailguide/core"
	"sailguide/core/fake"
)

func TestAnalogScaling(t *testing.T) {
	tests := []struct {
		name string
		cfg  AnalogConfig
		raw  core.ADCValue
		want int32
	}{
		{"zero", AnalogConfig{FullScale: 500}, 0, 0},
		{"full scale", AnalogConfig{FullScale: 500}, core.ADCMax, 500},
		{"half with offset", AnalogConfig{FullScale: 400, Offset: 30}, 2048, 230},
		{"current", AnalogConfig{FullScale: 8000, Samples: 4}, 2047, 3999},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adc := fake.NewADC()
			a, err := NewAnalog(adc, tc.cfg, clock.NewMock())
			test.That(t, err, test.ShouldBeNil)
			adc.SetValue(tc.cfg.Channel, tc.raw)

			got, err := a.SampleMM(context.Background())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got, test.ShouldEqual, tc.want)
			got, err = a.SampleMA(context.Background())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got, test.ShouldEqual, tc.want)
		})
	}
}

func TestAnalogTimeout(t *testing.T) {
	adc := fake.NewADC()
	adc.Pending = true
	a, err := NewAnalog(adc, AnalogConfig{FullScale: 100, Timeout: 5 * time.Millisecond}, clock.New())
	test.That(t, err, test.ShouldBeNil)

	_, err = a.SampleMM(context.Background())
	test.That(t, errors.Is(err, ErrTimeout), test.ShouldBeTrue)
}

func TestAnalogErrors(t *testing.T) {
	adc := fake.NewADC()
	a, err := NewAnalog(adc, AnalogConfig{FullScale: 100}, clock.NewMock())
	test.That(t, err, test.ShouldBeNil)

	adc.Err = errors.New("conversion fault")
	_, err = a.SampleMA(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrTimeout), test.ShouldBeFalse)

	adc.Err = nil
	adc.Pending = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.SampleMA(ctx)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
