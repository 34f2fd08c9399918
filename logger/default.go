package logger

import "sync/atomic"

var defLogger atomic.Value

func init() {
	defLogger.Store(loggerHolder{NewSlog(InfoLevel, false)})
}

// loggerHolder keeps atomic.Value stores consistently typed.
type loggerHolder struct {
	l Logger
}

func def() Logger {
	return defLogger.Load().(loggerHolder).l //nolint:forcetypeassert
}

func Debug(msg string, keysAndValues ...any) {
	def().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	def().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	def().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	def().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	def().Fatal(msg, keysAndValues...)
}

func SetLevel(level Level) {
	def().SetLevel(level)
}

func GetLogger() Logger {
	return def()
}

// SetLogger replaces the package default logger. A nil logger is ignored.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(loggerHolder{l})
}

func With(keyValues ...any) Logger {
	return def().With(keyValues...)
}
