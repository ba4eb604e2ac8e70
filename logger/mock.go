package logger

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// Entry is one call recorded by MockLogger.
type Entry struct {
	Level         Level
	Msg           string
	KeysAndValues []any
}

// MockLogger is a testify mock implementing Logger. Every call is recorded
// and can be read back with Entries. Once an expectation is set with
// On("Warn", msg, mock.Anything) and friends, calls are also checked against
// the expectations.
type MockLogger struct {
	mock.Mock

	mu      sync.Mutex
	entries []Entry
	level   Level
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{level: DebugLevel}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("Debug", DebugLevel, msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("Info", InfoLevel, msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("Warn", WarnLevel, msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("Error", ErrorLevel, msg, keysAndValues)
}

// Fatal records the call; unlike the real loggers it does not exit.
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.log("Fatal", FatalLevel, msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.mu.Lock()
	m.level = level
	m.mu.Unlock()
}

func (m *MockLogger) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.level
}

// With returns the mock itself so records and expectations are shared with
// child loggers.
func (m *MockLogger) With(_ ...any) Logger {
	return m
}

// Entries returns a copy of the recorded calls.
func (m *MockLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Entry(nil), m.entries...)
}

// Messages returns the recorded messages at level.
func (m *MockLogger) Messages(level Level) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msgs []string
	for _, e := range m.entries {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}

	return msgs
}

// log records the call and, with expectations set, checks it as a call of
// method.
func (m *MockLogger) log(method string, level Level, msg string, keysAndValues []any) {
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Level: level, Msg: msg, KeysAndValues: keysAndValues})
	expecting := len(m.ExpectedCalls) > 0
	m.mu.Unlock()

	if expecting {
		m.MethodCalled(method, msg, keysAndValues)
	}
}
