package log

// Logger is the structured logging surface the rest of the framework depends
// on. Each level method returns a fluent event, or nil when the level is
// filtered out.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger *CoreLogger

func init() {
	_defaultLogger = NewLogger(getDefaultCfg())
}

// SetDefaultLogger replaces the logger behind the package-level functions.
func SetDefaultLogger(logger *CoreLogger) {
	_defaultLogger = logger
}

// Refresh flushes all appenders of the default logger.
func Refresh() {
	_defaultLogger.Refresh()
}

// Close flushes and closes the default logger. Call it at shutdown so async
// appenders do not drop their tail.
func Close() {
	_defaultLogger.Close()
}

// Debug starts a debug event on the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info starts an info event on the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn starts a warn event on the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error starts an error event on the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal starts a fatal event on the default logger. The event panics after
// it is written.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}
