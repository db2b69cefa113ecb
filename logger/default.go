package logger

// defLogger is used by components created without WithLogger. Its level can be
// raised for a whole test binary through SetLevel, which is how the package
// tests honour LOG_LEVEL.
var defLogger = NewSlog(InfoLevel, false)

// Debug logs on the default logger.
func Debug(msg string, keysAndValues ...any) {
	defLogger.Debug(msg, keysAndValues...)
}

// Info logs on the default logger.
func Info(msg string, keysAndValues ...any) {
	defLogger.Info(msg, keysAndValues...)
}

// Warn logs on the default logger.
func Warn(msg string, keysAndValues ...any) {
	defLogger.Warn(msg, keysAndValues...)
}

// Error logs on the default logger.
func Error(msg string, keysAndValues ...any) {
	defLogger.Error(msg, keysAndValues...)
}

// Fatal logs on the default logger and exits the process.
func Fatal(msg string, keysAndValues ...any) {
	defLogger.Fatal(msg, keysAndValues...)
}

// SetLevel sets the level of the default logger and of every controller and
// link logger derived from it.
func SetLevel(level Level) {
	defLogger.SetLevel(level)
}

// GetLogger returns the default logger, the one controllers and links use
// unless configured otherwise.
func GetLogger() Logger {
	return defLogger
}

// With returns a child of the default logger carrying keyValues, e.g.
// With("controller", id).
func With(keyValues ...any) Logger {
	return defLogger.With(keyValues...)
}
