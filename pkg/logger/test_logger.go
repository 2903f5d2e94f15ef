package logger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger captures log messages for assertions in tests
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	nop      *zerolog.Logger
}

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{nop: &nop}
}

func (l *TestLogger) record(level, msg string, fields map[string]interface{}, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, LogMessage{Level: level, Message: msg, Fields: fields, Error: err})
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("DEBUG", msg, fields, nil)
}
func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("INFO", msg, fields, nil)
}
func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("WARN", msg, fields, nil)
}
func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("ERROR", msg, fields, nil)
}
func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.record("FATAL", msg, fields, nil)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return &testLoggerDerived{parent: l, fields: map[string]interface{}{key: value}}
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &testLoggerDerived{parent: l, fields: fields}
}

func (l *TestLogger) WithError(err error) Logger {
	return &testLoggerDerived{parent: l, err: err}
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger { return l.nop }

// GetMessages returns a copy of all captured log messages
func (l *TestLogger) GetMessages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	messages := make([]LogMessage, len(l.messages))
	copy(messages, l.messages)
	return messages
}

// GetMessagesByLevel returns all messages of a specific level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var filtered []LogMessage
	for _, msg := range l.messages {
		if msg.Level == level {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// HasMessage checks if a message with the given text was logged
func (l *TestLogger) HasMessage(text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, msg := range l.messages {
		if msg.Message == text {
			return true
		}
	}
	return false
}

// HasError checks if an error-level message was logged
func (l *TestLogger) HasError() bool {
	return len(l.GetMessagesByLevel("ERROR")) > 0
}

// Clear clears all captured messages
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = l.messages[:0]
}

// testLoggerDerived carries field and error context back to the parent recorder
type testLoggerDerived struct {
	parent *TestLogger
	fields map[string]interface{}
	err    error
}

func (d *testLoggerDerived) record(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(d.fields)+len(fields))
	for k, v := range d.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	d.parent.record(level, msg, merged, d.err)
}

func (d *testLoggerDerived) Debug(msg string) { d.record("DEBUG", msg, nil) }
func (d *testLoggerDerived) Info(msg string)  { d.record("INFO", msg, nil) }
func (d *testLoggerDerived) Warn(msg string)  { d.record("WARN", msg, nil) }
func (d *testLoggerDerived) Error(msg string) { d.record("ERROR", msg, nil) }
func (d *testLoggerDerived) Fatal(msg string) { d.record("FATAL", msg, nil) }

func (d *testLoggerDerived) DebugWithFields(msg string, fields map[string]interface{}) {
	d.record("DEBUG", msg, fields)
}
func (d *testLoggerDerived) InfoWithFields(msg string, fields map[string]interface{}) {
	d.record("INFO", msg, fields)
}
func (d *testLoggerDerived) WarnWithFields(msg string, fields map[string]interface{}) {
	d.record("WARN", msg, fields)
}
func (d *testLoggerDerived) ErrorWithFields(msg string, fields map[string]interface{}) {
	d.record("ERROR", msg, fields)
}
func (d *testLoggerDerived) FatalWithFields(msg string, fields map[string]interface{}) {
	d.record("FATAL", msg, fields)
}

func (d *testLoggerDerived) WithField(key string, value interface{}) Logger {
	merged := make(map[string]interface{}, len(d.fields)+1)
	for k, v := range d.fields {
		merged[k] = v
	}
	merged[key] = value
	return &testLoggerDerived{parent: d.parent, fields: merged, err: d.err}
}

func (d *testLoggerDerived) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(d.fields)+len(fields))
	for k, v := range d.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &testLoggerDerived{parent: d.parent, fields: merged, err: d.err}
}

func (d *testLoggerDerived) WithError(err error) Logger {
	return &testLoggerDerived{parent: d.parent, fields: d.fields, err: err}
}

func (d *testLoggerDerived) WithContext(ctx context.Context) Logger { return d }

func (d *testLoggerDerived) GetZerolog() *zerolog.Logger { return d.parent.nop }
