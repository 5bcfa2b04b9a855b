// Package logger owns the process-wide zap logger. Packages take a child
// with WithModule rather than holding their own.
package logger

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

type Options struct {
	// Level is a zap level name; anything unparsable means info.
	Level string

	// File adds a rotated JSON log next to stdout. Zero limits fall back to
	// 100 MB, 5 backups and 28 days.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init builds the JSON logger described by opts and installs it.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level)); err == nil {
		level = parsed
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	if path := strings.TrimSpace(opts.File); path != "" {
		core = zapcore.NewTee(core, zapcore.NewCore(enc, zapcore.AddSync(rotator(path, opts)), level))
	}
	Replace(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)))
	return nil
}

func rotator(path string, opts Options) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    positive(opts.MaxSizeMB, 100),
		MaxBackups: positive(opts.MaxBackups, 5),
		MaxAge:     positive(opts.MaxAgeDays, 28),
		Compress:   true,
	}
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Replace installs l and returns a func restoring the previous logger.
func Replace(l *zap.Logger) (restore func()) {
	if l == nil {
		l = zap.NewNop()
	}
	prev := current.Swap(l)
	return func() { current.Store(prev) }
}

func Logger() *zap.Logger { return current.Load() }

func Sync() error { return Logger().Sync() }

// WithModule returns a child logger tagged module=<name>.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
