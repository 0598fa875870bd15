// Package logging provides the timestamped application log and the
// category-filtered debug log.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const timeFormat = "2006-01-02 15:04:05.000"

// FileLogger writes timestamped lines to a file or any writer.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	w      io.Writer
	c      io.Closer
	mu     sync.Mutex
	closed bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileLogger{w: file, c: file}, nil
}

// NewWriterLogger logs to w. Close does not close w.
func NewWriterLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w}
}

// Log writes a formatted message with a timestamp. A nil logger discards.
func (l *FileLogger) Log(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	fmt.Fprintf(l.w, "%s %s\n", time.Now().Format(timeFormat), fmt.Sprintf(format, args...))
}

// Close closes the underlying file, if the logger owns one.
func (l *FileLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.c != nil {
		return l.c.Close()
	}
	return nil
}

// Tee returns a log function that writes to every non-nil logger.
func Tee(loggers ...*FileLogger) func(format string, args ...interface{}) {
	return func(format string, args ...interface{}) {
		for _, l := range loggers {
			l.Log(format, args...)
		}
	}
}
