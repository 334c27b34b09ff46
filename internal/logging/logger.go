// Package logging provides config-driven categorized file-based logging for vigil.
// Logs are written to .vigil/logs/ with separate files per category.
// Logging is controlled by debug_mode in the config - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategoryHeartbeat Category = "heartbeat" // Engine loop ticks and events
	CategorySignals   Category = "signals"   // Signal bus ingestion
	CategoryQuorum    Category = "quorum"    // Rule evaluation
	CategorySafety    Category = "safety"    // Safety governor decisions
	CategoryEnergy    Category = "energy"    // Energy and budget tracking
	CategoryCards     Category = "cards"     // Intent card lifecycle
	CategoryDispatch  Category = "dispatch"  // Subtask dispatch and reconciliation
	CategoryDigest    Category = "digest"    // Digest reporter
	CategoryWatch     Category = "watch"     // Filesystem watch adapter
)

// Settings controls logger behavior. Mirrors config.LoggingConfig to avoid
// a circular import.
type Settings struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// entry is the JSON form of a single log line.
type entry struct {
	Timestamp int64          `json:"ts"` // Unix milliseconds
	Category  string         `json:"cat"`
	Level     string         `json:"lvl"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers    = make(map[Category]*Logger)
	loggersMu  sync.RWMutex
	logsDir    string
	settings   Settings
	settingsMu sync.RWMutex
	logLevel   int
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory with the given settings.
// Should be called once at startup with the workspace path.
func Initialize(workspace string, s Settings) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	settingsMu.Lock()
	settings = s
	switch s.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	settingsMu.Unlock()

	if !s.DebugMode {
		return nil // Silent no-op in production mode
	}

	logsDir = filepath.Join(workspace, ".vigil", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== vigil logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", s.Level)
	return nil
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()

	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true // All enabled by default in debug mode
	}
	enabled, exists := settings.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) logJSON(level, msg string) {
	e := entry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(e)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

func (l *Logger) write(level int, tag, format string, args ...any) {
	if l.logger == nil || logLevel > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	settingsMu.RLock()
	jsonFmt := settings.JSONFormat
	settingsMu.RUnlock()
	if jsonFmt {
		l.logJSON(tag, msg)
	} else {
		l.logger.Printf("[%s] %s", tag, msg)
	}
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...any) { l.write(LevelDebug, "DEBUG", format, args...) }

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...any) { l.write(LevelInfo, "INFO", format, args...) }

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...any) { l.write(LevelWarn, "WARN", format, args...) }

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...any) { l.write(LevelError, "ERROR", format, args...) }

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Heartbeat logs to the heartbeat category
func Heartbeat(format string, args ...any) { Get(CategoryHeartbeat).Info(format, args...) }

// HeartbeatDebug logs debug to the heartbeat category
func HeartbeatDebug(format string, args ...any) { Get(CategoryHeartbeat).Debug(format, args...) }

// Signals logs to the signals category
func Signals(format string, args ...any) { Get(CategorySignals).Info(format, args...) }

// SignalsDebug logs debug to the signals category
func SignalsDebug(format string, args ...any) { Get(CategorySignals).Debug(format, args...) }

// Quorum logs to the quorum category
func Quorum(format string, args ...any) { Get(CategoryQuorum).Info(format, args...) }

// QuorumDebug logs debug to the quorum category
func QuorumDebug(format string, args ...any) { Get(CategoryQuorum).Debug(format, args...) }

// Safety logs to the safety category
func Safety(format string, args ...any) { Get(CategorySafety).Info(format, args...) }

// SafetyWarn logs warning to the safety category
func SafetyWarn(format string, args ...any) { Get(CategorySafety).Warn(format, args...) }

// Energy logs to the energy category
func Energy(format string, args ...any) { Get(CategoryEnergy).Info(format, args...) }

// EnergyDebug logs debug to the energy category
func EnergyDebug(format string, args ...any) { Get(CategoryEnergy).Debug(format, args...) }

// Cards logs to the cards category
func Cards(format string, args ...any) { Get(CategoryCards).Info(format, args...) }

// CardsDebug logs debug to the cards category
func CardsDebug(format string, args ...any) { Get(CategoryCards).Debug(format, args...) }

// Dispatch logs to the dispatch category
func Dispatch(format string, args ...any) { Get(CategoryDispatch).Info(format, args...) }

// DispatchDebug logs debug to the dispatch category
func DispatchDebug(format string, args ...any) { Get(CategoryDispatch).Debug(format, args...) }

// DispatchError logs error to the dispatch category
func DispatchError(format string, args ...any) { Get(CategoryDispatch).Error(format, args...) }

// Digest logs to the digest category
func Digest(format string, args ...any) { Get(CategoryDigest).Info(format, args...) }

// Watch logs to the watch category
func Watch(format string, args ...any) { Get(CategoryWatch).Info(format, args...) }

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...any) { Get(CategoryWatch).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
