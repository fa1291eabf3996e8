package logging

import (
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level orders log entries by severity.
type Level int32

// Debug carries per-message traffic (lock grants, acks, view deliveries).
// Warn is for recoverable failures: rollbacks, retried gateway attempts,
// dropped frames, a state transfer that gave up. Error means the node kept
// running in a degraded state.
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel accepts the names used in config files and LOG_LEVEL, in any
// case. Anything unrecognised is InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

type Field struct {
	Key   string
	Value any
}

// Logger is what every component receives. Components call With once at
// construction to pin their component and member fields.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	SetLevel(level Level)
}

// JSONLogger writes one JSON object per line. A logger and all children made
// with With share the writer lock and the level, so SetLevel on the root (a
// config reload) reaches every component.
type JSONLogger struct {
	writer io.Writer
	level  *atomic.Int32
	fields []Field
	mu     *sync.Mutex
}

// LogEntry is one line. The component and member fields are lifted out of
// Fields so lines from one node or subsystem can be filtered directly.
type LogEntry struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Member    string         `json:"member,omitempty"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (n NopLogger) With(...Field) Logger { return n }
func (NopLogger) SetLevel(Level)         {}

func NewNopLogger() Logger {
	return NopLogger{}
}

// TimedOperation logs a named operation once, with its latency, when End is
// called.
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}
