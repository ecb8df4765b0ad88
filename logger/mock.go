package logger

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger for asserting on log output in tests.
type MockLogger struct {
	mock.Mock

	recMu   sync.Mutex
	records []logRecord
}

type logRecord struct {
	method string
	msg    string
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// NewRecordingLogger returns a MockLogger that accepts every call. With returns
// the same mock, so records of child loggers are kept as well; read them back
// with Messages.
func NewRecordingLogger() *MockLogger {
	m := &MockLogger{}
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Return().Maybe()
	}
	m.On("SetLevel", mock.Anything).Return().Maybe()
	m.On("Level").Return(DebugLevel).Maybe()
	m.On("With", mock.Anything).Return(m).Maybe()

	return m
}

// Messages returns the messages logged through method ("Debug", "Warn", ...),
// in call order.
func (m *MockLogger) Messages(method string) []string {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	var msgs []string
	for _, r := range m.records {
		if r.method == method {
			msgs = append(msgs, r.msg)
		}
	}

	return msgs
}

func (m *MockLogger) record(method, msg string) {
	m.recMu.Lock()
	m.records = append(m.records, logRecord{method: method, msg: msg})
	m.recMu.Unlock()
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.record("Debug", msg)
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.record("Info", msg)
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.record("Warn", msg)
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.record("Error", msg)
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.record("Fatal", msg)
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level)
}

// With records the call with all key/values as a single argument.
func (m *MockLogger) With(keyValues ...any) Logger {
	args := m.Called(keyValues)
	return args.Get(0).(Logger)
}
