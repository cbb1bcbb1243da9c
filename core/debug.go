package core

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// debugSink adapts a DebugWriter (UART, USB CDC) to zapcore.WriteSyncer.
type debugSink struct {
	write DebugWriter
}

func (s debugSink) Write(p []byte) (int, error) {
	// Encoders terminate each entry with a newline; the writer adds its own
	n := len(p)
	if n > 0 && p[n-1] == '\n' {
		p = p[:n-1]
	}
	s.write(string(p))
	return n, nil
}

func (s debugSink) Sync() error { return nil }

// NewLogger builds the firmware logger on top of a platform debug writer.
// Entries below level are dropped before encoding.
func NewLogger(writer DebugWriter, level zapcore.Level) *zap.SugaredLogger {
	if writer == nil {
		return zap.NewNop().Sugar()
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "" // the board has no wall clock
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(debugSink{write: writer}),
		level,
	)
	return zap.New(core).Sugar()
}
