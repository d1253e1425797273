package log

import (
	"runtime"
	"strings"
	"sync"
	"time"
)

// CoreLogger renders structured events and fans them out to its appenders.
// Events are pooled, and caller lookups are cached by program counter, so the
// hot path allocates close to nothing.
type CoreLogger struct {
	appenders         []LogAppender
	minLevel          Level
	callerSkip        int
	eventPool         *sync.Pool
	overrides         *overrideTable
	callerCache       sync.Map
	enabledCallerInfo bool
}

// NewLogger builds a logger from cfg, falling back to the package defaults
// when cfg is nil. Appenders named in the config are attached immediately.
func NewLogger(cfg *LogCfg) *CoreLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &CoreLogger{
		minLevel:          cfg.LogLevel,
		callerSkip:        cfg.CallerSkip,
		overrides:         newOverrideTable(cfg.LevelOverrides),
		enabledCallerInfo: cfg.EnabledCallerInfo,
	}
	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	return logger
}

// AddAppender attaches another output destination. Every event is written to
// all attached appenders.
func (x *CoreLogger) AddAppender(appender LogAppender) {
	x.appenders = append(x.appenders, appender)
}

// Refresh flushes every appender.
func (x *CoreLogger) Refresh() {
	for _, appender := range x.appenders {
		appender.Refresh()
	}
}

// Close flushes and closes every appender.
func (x *CoreLogger) Close() {
	for _, appender := range x.appenders {
		appender.Close()
	}
}

func (x *CoreLogger) enabled(level Level) bool {
	return x.minLevel <= level
}

func (x *CoreLogger) newEvent() *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	return e
}

// OnEventEnd writes the finished event to every appender and returns it to
// the pool. A fatal event panics after the write, so the line reaches the
// appenders before the process unwinds.
func (x *CoreLogger) OnEventEnd(e *LogEvent) {
	for _, appender := range x.appenders {
		appender.Write(e.buf.Bytes())
	}

	if e.level == FatalLevel {
		panic("fatal log event")
	}

	x.eventPool.Put(e)
}

// Debug starts a debug event, or returns nil when filtered.
func (x *CoreLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

// Info starts an info event, or returns nil when filtered.
func (x *CoreLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

// Warn starts a warn event, or returns nil when filtered.
func (x *CoreLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

// Error starts an error event, or returns nil when filtered.
func (x *CoreLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal starts a fatal event. The event panics once it is written.
func (x *CoreLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

// getCallerInfo resolves the logging call site, skipping the logger's own
// frames plus the configured extra skip. Resolutions are cached by pc.
func (x *CoreLogger) getCallerInfo() *callerInfo {
	pc, file, line, ok := runtime.Caller(3 + x.callerSkip)
	if !ok {
		return unknownCaller
	}

	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	funcName := runtime.FuncForPC(pc).Name()
	function := funcName
	if dotIdx := strings.LastIndexByte(funcName, '.'); dotIdx != -1 {
		function = funcName[dotIdx+1:]
	}

	// Keep the last two path segments, "pkg/file.go" reads well and stays
	// stable across build machines.
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if secondLastSlash := strings.LastIndexByte(file[:lastSlash], '/'); secondLastSlash >= 0 {
			file = file[secondLastSlash+1:]
		}
	}

	c := newCallerInfo(file, function, line)
	x.callerCache.Store(pc, c)
	return c
}

// log opens an event at the given level with the common time, level and
// caller fields. When the level is filtered it still consults the override
// table, so a pinned call site logs even below the global minimum.
func (x *CoreLogger) log(level Level) *LogEvent {
	var info *callerInfo
	if !x.enabled(level) {
		if x.overrides.empty() {
			return nil
		}
		info = x.getCallerInfo()
		level = x.overrides.resolve(info.file, info.line, level)
		if !x.enabled(level) {
			return nil
		}
	}

	e := x.newEvent()
	e.level = level

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())

	if x.enabledCallerInfo {
		if info == nil {
			info = x.getCallerInfo()
		}
		e.Str("caller", info.String())
	}

	return e
}
