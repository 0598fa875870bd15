package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Debug categories.
const (
	CatEngine = "engine"
	CatBatch  = "batch"
	CatDBC    = "dbc"
	CatAPI    = "api"
	CatConfig = "config"
	CatMQTT   = "mqtt"
	CatValkey = "valkey"
	CatKafka  = "kafka"
	catDebug  = "debug"
)

// groups expand a filter name into several categories.
var groups = map[string][]string{
	"sinks": {CatMQTT, CatValkey, CatKafka},
	"core":  {CatBatch, CatDBC},
}

// DebugLogger writes verbose, category-tagged lines to a dedicated file.
// It is intended for troubleshooting generation runs and sink connections.
type DebugLogger struct {
	file    *os.File
	mu      sync.Mutex
	closed  bool
	filters map[string]bool // empty = log all
}

var (
	globalDebugLogger *DebugLogger
	globalDebugMu     sync.RWMutex
)

// KnownCategories lists the categories accepted by SetFilter.
func KnownCategories() []string {
	out := []string{CatEngine, CatBatch, CatDBC, CatAPI, CatConfig, CatMQTT, CatValkey, CatKafka}
	for g := range groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// NewDebugLogger creates path fresh (truncating it) and writes a header.
func NewDebugLogger(path string) (*DebugLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log file: %w", err)
	}

	logger := &DebugLogger{file: file, filters: make(map[string]bool)}
	logger.Log(catDebug, "Debug logging started - %s", time.Now().Format(time.RFC3339))
	return logger, nil
}

// SetFilter restricts logging to a comma-separated list of categories.
// Group names such as "sinks" expand to their members. Empty logs everything.
func (l *DebugLogger) SetFilter(filter string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.filters = make(map[string]bool)
	for _, c := range strings.Split(filter, ",") {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		l.filters[c] = true
		for _, m := range groups[c] {
			l.filters[m] = true
		}
	}

	if len(l.filters) > 0 {
		list := make([]string, 0, len(l.filters))
		for c := range l.filters {
			list = append(list, c)
		}
		sort.Strings(list)
		fmt.Fprintf(l.file, "%s [%s] Filtering enabled for: %s\n",
			time.Now().Format(timeFormat), catDebug, strings.Join(list, ", "))
	}
}

// Must be called with l.mu held.
func (l *DebugLogger) shouldLog(category string) bool {
	if len(l.filters) == 0 {
		return true
	}
	category = strings.ToLower(category)
	return category == catDebug || l.filters[category]
}

// Enabled reports whether category would be written.
func (l *DebugLogger) Enabled(category string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.shouldLog(category)
}

// Log writes a formatted message with timestamp and category prefix.
func (l *DebugLogger) Log(category, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.shouldLog(category) {
		return
	}
	fmt.Fprintf(l.file, "%s [%s] %s\n", time.Now().Format(timeFormat), category, fmt.Sprintf(format, args...))
}

// Close writes a footer and closes the file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	fmt.Fprintf(l.file, "%s [%s] Debug logging ended\n", time.Now().Format(timeFormat), catDebug)
	return l.file.Close()
}

// SetGlobalDebugLogger sets the global debug logger instance.
func SetGlobalDebugLogger(logger *DebugLogger) {
	globalDebugMu.Lock()
	defer globalDebugMu.Unlock()
	globalDebugLogger = logger
}

// GetGlobalDebugLogger returns the global debug logger instance.
func GetGlobalDebugLogger() *DebugLogger {
	globalDebugMu.RLock()
	defer globalDebugMu.RUnlock()
	return globalDebugLogger
}

// DebugLog logs a message if debug logging is enabled.
func DebugLog(category, format string, args ...interface{}) {
	if logger := GetGlobalDebugLogger(); logger != nil {
		logger.Log(category, format, args...)
	}
}

// DebugConnect logs a connection attempt.
func DebugConnect(category, address string) {
	DebugLog(category, "CONNECT to %s", address)
}

// DebugConnectSuccess logs a successful connection.
func DebugConnectSuccess(category, address, details string) {
	DebugLog(category, "CONNECTED to %s - %s", address, details)
}

// DebugConnectError logs a connection failure.
func DebugConnectError(category, address string, err error) {
	DebugLog(category, "CONNECT FAILED to %s: %v", address, err)
}

// DebugDisconnect logs a disconnection.
func DebugDisconnect(category, address, reason string) {
	DebugLog(category, "DISCONNECT from %s: %s", address, reason)
}

// DebugError logs an error with context.
func DebugError(category, context string, err error) {
	DebugLog(category, "ERROR in %s: %v", context, err)
}
