// Package logging builds the zap loggers used by roomd and roomctl.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger. Production loggers write JSON to stderr; dev loggers write colored
// console lines at debug level. A non-empty file path tees JSON into that file as well.
func New(dev bool, file string, fields ...zap.Field) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	stderrEncoder := zapcore.NewJSONEncoder(encoderCfg)
	if dev {
		level = zapcore.DebugLevel
		devCfg := encoderCfg
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stderrEncoder = zapcore.NewConsoleEncoder(devCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(stderrEncoder, zapcore.Lock(os.Stderr), level)}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	fields = append(fields, zap.Int("pid", os.Getpid()))
	opts = append(opts, zap.Fields(fields...))
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}
