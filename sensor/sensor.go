// Package sensor samples the guide's absolute distance sensor and motor
// current sensor, and watches the wind instrument for over-limit gusts.
package sensor

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds one blocking sample.
const DefaultTimeout = 1000 * time.Millisecond

// ErrTimeout is returned when a sample is not ready within its timeout
var ErrTimeout = errors.New("sensor sample timed out")

// Distance measures the absolute carriage position in millimetres.
type Distance interface {
	SampleMM(ctx context.Context) (int32, error)
}

// Current measures the motor current in milliamps.
type Current interface {
	SampleMA(ctx context.Context) (int32, error)
}
