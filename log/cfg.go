package log

import (
	"fmt"
	"path/filepath"
)

// LogCfg configures a logger: minimum level, output destinations, file
// rotation and the async write pipeline.
type LogCfg struct {
	// LogPath is the log file path when the file appender is enabled.
	// Parent directories are created on first write.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level an event needs to be written.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the file once it reaches this many megabytes.
	FileSplitMB int `mapstructure:"splitMB"`

	// FileSplitHour rotates the file when the clock crosses this hour of
	// day (0-23). Zero disables time-based rotation.
	FileSplitHour int `mapstructure:"splitHour"`

	// IsAsync moves file writes off the caller's goroutine; logging waits
	// only when the async queue is full.
	IsAsync bool `mapstructure:"isAsync"`

	// AsyncCacheSize bounds the queued events in async mode.
	AsyncCacheSize int `mapstructure:"asyncCacheSize"`

	// AsyncWriteMillSec is the async flush interval in milliseconds.
	AsyncWriteMillSec int `mapstructure:"asyncWriteMillSec"`

	// CallerSkip adds stack frames to skip when resolving caller info,
	// for wrappers that log on behalf of their caller.
	CallerSkip int `mapstructure:"callerSkip"`

	// FileAppender enables the rotating file output.
	FileAppender bool `mapstructure:"fileAppender"`

	// ConsoleAppender enables stdout output.
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// LevelOverrides raise the level at specific call sites. They are only
	// consulted for events below LogLevel, so they cannot silence a site.
	LevelOverrides []LevelOverride `mapstructure:"levelOverrides"`

	// EnabledCallerInfo adds a "caller" field with file, line and function
	// to every event.
	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// Validate rejects configurations that NewLogger cannot honor.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel < TraceLevel || cfg.LogLevel > FatalLevel {
		return fmt.Errorf("invalid log level: %d, must be between %d (Trace) and %d (Fatal)",
			cfg.LogLevel, TraceLevel, FatalLevel)
	}
	if cfg.FileSplitMB < 1 || cfg.FileSplitMB > 1024 {
		return fmt.Errorf("file split size must be between 1MB and 1024MB, got %dMB", cfg.FileSplitMB)
	}
	if cfg.FileSplitHour < 0 || cfg.FileSplitHour > 23 {
		return fmt.Errorf("file split hour must be between 0 and 23, got %d", cfg.FileSplitHour)
	}
	if cfg.IsAsync && cfg.AsyncCacheSize < 1 {
		return fmt.Errorf("async cache size must be at least 1 when async mode is enabled, got %d", cfg.AsyncCacheSize)
	}
	if cfg.IsAsync && cfg.AsyncWriteMillSec < 10 {
		return fmt.Errorf("async write interval must be at least 10ms, got %dms", cfg.AsyncWriteMillSec)
	}
	if cfg.CallerSkip < 0 {
		return fmt.Errorf("caller skip must be non-negative, got %d", cfg.CallerSkip)
	}
	if cfg.FileAppender {
		if cfg.LogPath == "" {
			return fmt.Errorf("log path cannot be empty when file appender is enabled")
		}
		cfg.LogPath = filepath.Clean(cfg.LogPath)
	}
	if !cfg.FileAppender && !cfg.ConsoleAppender {
		return fmt.Errorf("at least one appender (file or console) must be enabled")
	}
	return nil
}

var _defaultCfg = &LogCfg{
	LogPath:           "./r2p2.log",
	LogLevel:          DebugLevel,
	FileSplitMB:       50,
	FileSplitHour:     0,
	IsAsync:           true,
	CallerSkip:        1,
	FileAppender:      true,
	ConsoleAppender:   true,
	EnabledCallerInfo: true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
