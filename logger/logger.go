// Package logger owns the process-wide zap logger: a console encoder on
// stdout, optionally teed to a rotating JSON file.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level string

	// File enables the JSON file sink when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	level = zap.NewAtomicLevelAt(zap.InfoLevel)

	mu   sync.RWMutex
	base = newConsole()
	file *lumberjack.Logger
)

func newConsole() *zap.Logger {
	return zap.New(consoleCore(), zap.AddCaller())
}

func consoleCore() zapcore.Core {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stdout), level)
}

// Init replaces the process logger. Calling it again closes the previous
// log file.
func Init(opts Options) error {
	if err := SetLevel(opts.Level); err != nil {
		return err
	}

	cores := []zapcore.Core{consoleCore()}
	var lj *lumberjack.Logger
	if opts.File != "" {
		lj = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(lj), level))
	}

	mu.Lock()
	old := file
	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	file = lj
	mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// SetLevel accepts debug, info, warn or error. Empty means info.
func SetLevel(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		level.SetLevel(zap.InfoLevel)
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		return fmt.Errorf("logger: unknown level %q", s)
	}
	return nil
}

func Level() zapcore.Level { return level.Level() }

// L returns the current process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named is L().Named(name).
func Named(name string) *zap.Logger { return L().Named(name) }

func Debugf(format string, v ...any) { L().WithOptions(zap.AddCallerSkip(1)).Sugar().Debugf(format, v...) }
func Infof(format string, v ...any)  { L().WithOptions(zap.AddCallerSkip(1)).Sugar().Infof(format, v...) }
func Warnf(format string, v ...any)  { L().WithOptions(zap.AddCallerSkip(1)).Sugar().Warnf(format, v...) }
func Errorf(format string, v ...any) { L().WithOptions(zap.AddCallerSkip(1)).Sugar().Errorf(format, v...) }

// Sync flushes buffered entries and closes the log file.
func Sync() error {
	mu.Lock()
	l, lj := base, file
	file = nil
	mu.Unlock()

	err := l.Sync()
	// stdout sync fails on terminals and pipes
	if err != nil && strings.Contains(err.Error(), "/dev/stdout") {
		err = nil
	}
	if lj != nil {
		if cerr := lj.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
