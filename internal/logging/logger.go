// Package logging provides categorized structured logging for mcpdocs.
// Each subsystem logs through a named zap logger so log lines can be
// filtered per category (boot, store, crawler, embedding, ingest, server).
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and initialization
	CategoryStore     Category = "store"     // Database operations
	CategoryCrawler   Category = "crawler"   // Documentation crawling
	CategoryEmbedding Category = "embedding" // Embedding generation
	CategoryIngest    Category = "ingest"    // Ingestion pipeline
	CategoryServer    Category = "server"    // MCP protocol server
	CategoryHealth    Category = "health"    // Health endpoints
)

var (
	root      *zap.Logger
	rootMu    sync.RWMutex
	loggers   = make(map[Category]*zap.Logger)
	loggersMu sync.Mutex
)

// Init installs the process-wide logger. Safe to call more than once;
// the last call wins. When verbose is true, debug-level logging is enabled.
func Init(verbose bool) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	rootMu.Lock()
	root = logger
	rootMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*zap.Logger)
	loggersMu.Unlock()
}

// Get returns (or creates) the named logger for the given category.
// Returns a no-op logger when Init has not been called.
func Get(category Category) *zap.Logger {
	rootMu.RLock()
	r := root
	rootMu.RUnlock()
	if r == nil {
		return zap.NewNop()
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := r.Named(string(category))
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	rootMu.RLock()
	defer rootMu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("operation completed",
		zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("slow operation",
			zap.String("op", t.op), zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		Get(t.category).Debug("operation completed",
			zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
