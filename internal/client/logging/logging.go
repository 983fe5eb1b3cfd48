package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the client logger. The terminal UI owns stdout, so everything is
// written to a log file next to the binary; debug-level output is gated on the
// debug flag. Callers that want no output at all use zap.NewNop directly.
func New(path string, debug bool) *zap.Logger {
	if path == "" {
		path = "debug.log"
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return zap.NewNop()
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(f),
		level,
	)
	return zap.New(core)
}
