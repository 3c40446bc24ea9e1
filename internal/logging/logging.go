// Package logging provides config-driven categorized logging for the
// engine and blackboard. Each category writes to its own file under
// <workspace>/.rete/logs/ when debug mode is enabled; zap backs the
// actual structured output.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging concern. Unlike the teacher's sprawling
// per-subsystem taxonomy, this engine only needs a handful.
type Category string

const (
	CategoryEngine  Category = "engine"
	CategoryNetwork Category = "network"
	CategoryStore   Category = "store"
	CategoryAudit   Category = "audit"
	CategoryQueue   Category = "queue"
	CategoryCLI     Category = "cli"
)

var (
	mu         sync.RWMutex
	loggersByC = make(map[Category]*zap.SugaredLogger)
	logsDir    string
	debugMode  bool
	categories map[string]bool
)

// Initialize sets the workspace root and enables file logging if
// debugMode is true. Safe to call once at process startup; a no-op
// Initialize("") disables file output entirely (production mode).
func Initialize(workspace string, debug bool, enabledCategories map[string]bool) error {
	mu.Lock()
	defer mu.Unlock()

	debugMode = debug
	categories = enabledCategories
	loggersByC = make(map[Category]*zap.SugaredLogger)

	if !debug || workspace == "" {
		logsDir = ""
		return nil
	}
	logsDir = filepath.Join(workspace, ".rete", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("logging: creating log directory: %w", err)
	}
	return nil
}

// IsCategoryEnabled reports whether a category should emit logs in the
// current configuration.
func IsCategoryEnabled(c Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !debugMode {
		return false
	}
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(c)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (creating if necessary) the logger for a category. The
// returned logger is a safe no-op sink when the category or debug mode
// is disabled.
func Get(c Category) *zap.SugaredLogger {
	if !IsCategoryEnabled(c) {
		return zap.NewNop().Sugar()
	}

	mu.RLock()
	if l, ok := loggersByC[c]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggersByC[c]; ok {
		return l
	}

	l := newFileLogger(c)
	loggersByC[c] = l
	return l
}

func newFileLogger(c Category) *zap.SugaredLogger {
	if logsDir == "" {
		return zap.NewNop().Sugar()
	}
	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, c))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return zap.NewNop().Sugar()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), zapcore.DebugLevel)
	return zap.New(core).Sugar().With("category", string(c))
}

// CloseAll flushes and drops all category loggers. Call on shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggersByC {
		_ = l.Sync()
	}
	loggersByC = make(map[Category]*zap.SugaredLogger)
}

// Timer measures and logs the duration of an operation at Debug level.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing op under category; call Stop when done.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

func (t *Timer) Stop() {
	Get(t.category).Debugf("%s took %s", t.op, time.Since(t.start))
}
