// Package logging provides a small structured logger used across the service.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level controls which messages a Logger emits
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Field carries structured key/value pairs attached to a log entry
type Field struct {
	fields map[string]interface{}
}

// WithField attaches a single key/value pair
func WithField(key string, value interface{}) Field {
	return Field{fields: map[string]interface{}{key: value}}
}

// WithFields attaches a map of key/value pairs
func WithFields(fields map[string]interface{}) Field {
	return Field{fields: fields}
}

// Logger writes leveled, structured log lines
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// New creates a logger writing to stderr at the given minimum level
func New(level Level) *Logger {
	return &Logger{out: os.Stderr, level: level}
}

// NewWithOutput creates a logger writing to the given writer
func NewWithOutput(level Level, out io.Writer) *Logger {
	return &Logger{out: out, level: level}
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields)
}

// Info logs at info level
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields)
}

// Error logs at error level
func (l *Logger) Error(msg string, fields ...Field) {
	l.log(LevelError, msg, fields)
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	merged := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f.fields {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, merged[k])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, b.String())
}
