package logger

import (
	"os"
	"sync/atomic"
)

// EnvLevel names the environment variable read for the initial level of the
// default logger.
const EnvLevel = "LOG_LEVEL"

var defLogger atomic.Pointer[Logger]

func init() {
	level, err := ParseLevel(os.Getenv(EnvLevel))
	if err != nil {
		level = InfoLevel
	}

	SetLogger(NewSlog(level, false))
}

func load() Logger {
	return *defLogger.Load()
}

func Debug(msg string, keysAndValues ...any) {
	load().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	load().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	load().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	load().Error(msg, keysAndValues...)
}

func SetLevel(level Level) {
	load().SetLevel(level)
}

// GetLogger returns the process-wide default logger. Components created
// without an explicit logger use it.
func GetLogger() Logger {
	return load()
}

// SetLogger replaces the default logger. A nil l is ignored. Loggers already
// handed out by GetLogger or With are not affected.
func SetLogger(l Logger) {
	if l == nil {
		return
	}

	defLogger.Store(&l)
}

func With(keyValues ...any) Logger {
	return load().With(keyValues...)
}
