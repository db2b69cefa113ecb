package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger. Tests pass it through a component's
// WithLogger option to assert that an event was logged, e.g. a warning for a
// gain that failed to build.
//
// Components derive their logger with With, so set up an expectation for
// With returning the mock itself.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

// NewMockLogger returns a MockLogger without expectations.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Debug records the call with msg and the key/value slice as arguments.
func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

// Fatal records the call. Unlike the real loggers it does not exit.
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	level, _ := args.Get(0).(Level)

	return level
}

// With records the call with keyValues spread as arguments and returns the
// Logger configured by the expectation.
func (m *MockLogger) With(keyValues ...any) Logger {
	args := m.Called(keyValues...)
	l, _ := args.Get(0).(Logger)

	return l
}
