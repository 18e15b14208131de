package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configure New.
type Options struct {
	// Path is the JSON log file.
	Path string
	// Profile and Binary are attached to every entry.
	Profile string
	Binary  string
	// Level is the minimum level written. The zero value is Info.
	Level zapcore.Level
	// Console also writes human-readable entries to stderr. The TUI owns the
	// terminal and turns it off.
	Console bool
}

// New creates a zap logger that writes JSON to the log file and, when
// Console is set, also to stderr. Profile, binary and PID are included as
// initial fields.
func New(opts Options) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), opts.Level),
	}
	if opts.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), opts.Level))
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.Fields(
			zap.String("profile", opts.Profile),
			zap.String("binary", opts.Binary),
			zap.Int("pid", os.Getpid()),
		),
	)

	return logger, nil
}
