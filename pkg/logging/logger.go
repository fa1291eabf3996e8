package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// NewJSONLogger creates a new JSON logger
func NewJSONLogger(writer io.Writer, level Level) *JSONLogger {
	l := &JSONLogger{
		writer: writer,
		level:  new(atomic.Int32),
		mu:     &sync.Mutex{},
	}
	l.level.Store(int32(level))
	return l
}

// NewDefaultLogger creates a logger that writes to stdout at INFO level
func NewDefaultLogger() *JSONLogger {
	return NewJSONLogger(os.Stdout, InfoLevel)
}

func (l *JSONLogger) log(level Level, msg string, fields ...Field) {
	if int32(level) < l.level.Load() {
		return
	}

	entry := LogEntry{
		Time:    time.Now().Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			entry.add(f)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.writer, "[ERROR] Failed to marshal log entry %q: %v\n", msg, err)
		return
	}

	data = append(data, '\n')
	l.writer.Write(data)
}

// Debug logs a debug-level message
func (l *JSONLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields...)
}

// Info logs an info-level message
func (l *JSONLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields...)
}

// Warn logs a warning-level message
func (l *JSONLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields...)
}

// Error logs an error-level message
func (l *JSONLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields...)
}

// add lifts component and member to the top level; later fields win.
func (e *LogEntry) add(f Field) {
	if s, ok := f.Value.(string); ok {
		switch f.Key {
		case "component":
			e.Component = s
			return
		case "member":
			e.Member = s
			return
		}
	}
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[f.Key] = f.Value
}

// With creates a child logger with the given fields pre-set
func (l *JSONLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)

	return &JSONLogger{
		writer: l.writer,
		level:  l.level,
		fields: merged,
		mu:     l.mu,
	}
}

// SetLevel sets the minimum level for this logger and every logger that
// shares its root.
func (l *JSONLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
	defaultOnce   sync.Once
)

// DefaultLogger returns the process-wide logger, honouring LOG_LEVEL
func DefaultLogger() Logger {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		if defaultLogger != nil {
			return
		}
		level := InfoLevel
		if s := os.Getenv("LOG_LEVEL"); s != "" {
			level = ParseLevel(s)
		}
		defaultLogger = NewJSONLogger(os.Stdout, level)
	})

	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger
func SetDefaultLogger(logger Logger) {
	defaultOnce.Do(func() {})
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// OrDefault returns logger, or the process-wide logger when logger is nil
func OrDefault(logger Logger) Logger {
	if logger == nil {
		return DefaultLogger()
	}
	return logger
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// End logs the operation at the given level with its duration
func (t *TimedOperation) End(level Level, extra ...Field) time.Duration {
	elapsed := time.Since(t.start)
	fields := make([]Field, 0, len(t.fields)+len(extra)+1)
	fields = append(fields, t.fields...)
	fields = append(fields, extra...)
	fields = append(fields, Latency(elapsed))

	switch level {
	case DebugLevel:
		t.logger.Debug(t.msg, fields...)
	case InfoLevel:
		t.logger.Info(t.msg, fields...)
	case WarnLevel:
		t.logger.Warn(t.msg, fields...)
	default:
		t.logger.Error(t.msg, fields...)
	}
	return elapsed
}

// Elapsed returns the time since the timer started without logging
func (t *TimedOperation) Elapsed() time.Duration {
	return time.Since(t.start)
}
