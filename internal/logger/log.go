// Package logger wraps a process-wide zap logger.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
)

// Init builds the process logger. level is a zap level name; format is
// "console" for human readable output and anything else for JSON.
func Init(level, format string) error {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.SetLevel(zap.InfoLevel)
	}

	var zc zap.Config
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.Encoding = "json"
	}
	zc.Level = lvl
	zc.OutputPaths = []string{"stdout"}

	l, err := zc.Build()
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set replaces the process logger. Tests use it with zaptest/observer.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Info(msg string) {
	get().Info(msg)
}

func Infof(template string, args ...interface{}) {
	get().Infof(template, args...)
}

// Infow logs msg with structured key/value pairs.
func Infow(msg string, keysAndValues ...interface{}) {
	get().Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	get().Warnf(template, args...)
}

// Warnw logs msg at warn level with structured key/value pairs.
func Warnw(msg string, keysAndValues ...interface{}) {
	get().Warnw(msg, keysAndValues...)
}

// Error logs msg with err attached under the "error" key.
func Error(msg string, err error) {
	get().Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	get().Errorf(template, args...)
}

// Errorw logs msg at error level with structured key/value pairs.
func Errorw(msg string, keysAndValues ...interface{}) {
	get().Errorw(msg, keysAndValues...)
}

func Fatalf(template string, args ...interface{}) {
	get().Fatalf(template, args...)
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	_ = get().Sync()
}
