package logger

import (
	"os"
	"sync/atomic"
)

type holder struct{ Logger }

var defLogger atomic.Pointer[holder]

func init() {
	defLogger.Store(&holder{NewSlog(os.Stdout, InfoLevel, false)})
}

func current() Logger {
	return defLogger.Load().Logger
}

func Debug(msg string, keysAndValues ...any) {
	current().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	current().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	current().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	current().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	current().Fatal(msg, keysAndValues...)
}

func SetLevel(level Level) {
	current().SetLevel(level)
}

// GetLogger returns the package default logger. Drivers, chunkers and
// dictionaries created without a logger option use it.
func GetLogger() Logger {
	return current()
}

// SetLogger replaces the package default logger. A nil logger is ignored.
// Components keep the logger they were created with.
func SetLogger(l Logger) {
	if l != nil {
		defLogger.Store(&holder{l})
	}
}

func With(keyValues ...any) Logger {
	return current().With(keyValues...)
}
