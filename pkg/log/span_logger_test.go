package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrogson/walle/pkg/log"
)

func TestSpanLogger(t *testing.T) {
	inner := newMockLogger()
	ser := &mockSpanEventRecorder{traceID: "trace-1", spanID: "span-1"}
	logger := log.NewSpanLogger(inner, ser)
	assert.Equal(t, 1, inner.callerSkip)

	logger = logger.WithName("rpc").WithKV("conn", "c1")
	assert.Equal(t, "rpc", logger.Name())
	assert.Equal(t, []any{"conn", "c1"}, logger.GetAllKV())

	t.Run("Info is mirrored as an event", func(t *testing.T) {
		logger.Info("handled", "method", "ping")

		entry := inner.entries[len(inner.entries)-1]
		assert.Equal(t, log.LevelInfo, entry.level)
		assert.Equal(t, []any{"traceId", "trace-1", "spanId", "span-1", "method", "ping"}, entry.keysAndValues)

		assert.False(t, ser.hasErr)
		assert.Equal(t, "handled", ser.lastName)
		assert.Equal(t, []any{"level", "info", "component", "rpc", "conn", "c1", "method", "ping"}, ser.lastKV)
	})

	t.Run("Error marks the span", func(t *testing.T) {
		logger.Error("failed", "err", "boom")
		assert.True(t, ser.hasErr)
		assert.Equal(t, log.LevelError, inner.entries[len(inner.entries)-1].level)
	})

	t.Run("Span events are redacted", func(t *testing.T) {
		logger.Warn("import", "password", "pw")
		assert.Equal(t, []any{"level", "warn", "component", "rpc", "conn", "c1", "password", log.Redacted}, ser.lastKV)
	})
}

type mockEntry struct {
	level         log.Level
	msg           string
	keysAndValues []any
}

// mockLogger records entries; derived loggers share the entry list.
type mockLogger struct {
	name          string
	keysAndValues []any
	callerSkip    int
	shared        *[]mockEntry
	entries       []mockEntry
}

func newMockLogger() *mockLogger {
	m := &mockLogger{}
	m.shared = &m.entries
	return m
}

func (m *mockLogger) record(level log.Level, msg string, kv []any) {
	*m.shared = append(*m.shared, mockEntry{level: level, msg: msg, keysAndValues: kv})
}

func (m *mockLogger) Debug(msg string, kv ...any) { m.record(log.LevelDebug, msg, kv) }
func (m *mockLogger) Info(msg string, kv ...any)  { m.record(log.LevelInfo, msg, kv) }
func (m *mockLogger) Warn(msg string, kv ...any)  { m.record(log.LevelWarn, msg, kv) }
func (m *mockLogger) Error(msg string, kv ...any) { m.record(log.LevelError, msg, kv) }
func (m *mockLogger) Fatal(msg string, kv ...any) { m.record(log.LevelFatal, msg, kv) }

func (m *mockLogger) WithKV(key string, value any) log.Logger {
	c := *m
	c.keysAndValues = append(append([]any{}, m.keysAndValues...), key, value)
	return &c
}

func (m *mockLogger) GetAllKV() []any { return m.keysAndValues }

func (m *mockLogger) WithName(name string) log.Logger {
	c := *m
	c.name = name
	return &c
}

func (m *mockLogger) Name() string { return m.name }

func (m *mockLogger) AddCallerSkip(skip int) log.Logger {
	m.callerSkip += skip
	return m
}

type mockSpanEventRecorder struct {
	traceID  string
	spanID   string
	hasErr   bool
	lastName string
	lastKV   []any
}

func (ser *mockSpanEventRecorder) TraceID() string { return ser.traceID }
func (ser *mockSpanEventRecorder) SpanID() string  { return ser.spanID }

func (ser *mockSpanEventRecorder) RecordEvent(name string, keysAndValues ...any) {
	ser.lastName, ser.lastKV = name, keysAndValues
}

func (ser *mockSpanEventRecorder) RecordError(name string, keysAndValues ...any) {
	ser.hasErr = true
	ser.lastName, ser.lastKV = name, keysAndValues
}
