package sensor

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MWV wind speed units
const (
	unitKMH   = "K"
	unitKnots = "N"
	unitMPS   = "M"
	unitMPH   = "S"
)

const maxSentence = 82

// WindMonitor reads NMEA 0183 MWV sentences from the wind instrument and
// calls OnLimit for each valid reading above the limit. It never clears the
// fault; that is an operator decision.
type WindMonitor struct {
	LimitMPS float64
	OnLimit  func(speedMPS float64)

	logger *zap.SugaredLogger
	line   []byte
	last   float64
}

// NewWindMonitor returns a monitor that trips above limitMPS.
func NewWindMonitor(limitMPS float64, onLimit func(float64), logger *zap.SugaredLogger) *WindMonitor {
	return &WindMonitor{
		LimitMPS: limitMPS,
		OnLimit:  onLimit,
		logger:   logger,
		line:     make([]byte, 0, maxSentence),
	}
}

// SpeedMPS returns the last valid wind speed.
func (w *WindMonitor) SpeedMPS() float64 {
	return w.last
}

// Feed consumes raw UART bytes and handles every complete sentence.
func (w *WindMonitor) Feed(b []byte) {
	for _, c := range b {
		switch {
		case c == '\n' || c == '\r':
			if len(w.line) > 0 {
				if _, err := w.HandleSentence(string(w.line)); err != nil {
					w.logger.Debugw("wind sentence dropped", "error", err)
				}
				w.line = w.line[:0]
			}
		case len(w.line) < maxSentence:
			w.line = append(w.line, c)
		default:
			// Overlong garbage; resync on the next line end
			w.line = w.line[:0]
		}
	}
}

// Run reads sentences from r until ctx is done or r fails.
func (w *WindMonitor) Run(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := br.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if _, perr := w.HandleSentence(line); perr != nil {
				w.logger.Debugw("wind sentence dropped", "line", line, "error", perr)
			}
		}
		if err != nil {
			return errors.Wrap(err, "read wind instrument")
		}
	}
}

// HandleSentence parses one sentence and reports whether it tripped the limit.
// Sentences other than MWV are ignored.
func (w *WindMonitor) HandleSentence(line string) (bool, error) {
	s, err := nmea.Parse(line)
	if err != nil {
		return false, errors.Wrap(err, "parse nmea")
	}
	mwv, ok := s.(nmea.MWV)
	if !ok || !mwv.StatusValid {
		return false, nil
	}

	speed, err := toMPS(mwv.WindSpeed, mwv.WindSpeedUnit)
	if err != nil {
		return false, err
	}
	w.last = speed
	if speed <= w.LimitMPS {
		return false, nil
	}
	w.logger.Warnw("wind speed above limit", "speed_mps", speed, "limit_mps", w.LimitMPS, "angle", mwv.WindAngle)
	if w.OnLimit != nil {
		w.OnLimit(speed)
	}
	return true, nil
}

func toMPS(speed float64, unit string) (float64, error) {
	switch unit {
	case unitMPS:
		return speed, nil
	case unitKnots:
		return speed * 1852 / 3600, nil
	case unitKMH:
		return speed / 3.6, nil
	case unitMPH:
		return speed * 0.44704, nil
	default:
		return 0, errors.Errorf("unknown wind speed unit %q", unit)
	}
}
