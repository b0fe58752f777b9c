package log

// Logger logs messages with alternating key-value context.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs and may terminate the process.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a logger that adds key=value to every entry.
	WithKV(key string, value any) Logger
	// GetAllKV returns the pairs accumulated through WithKV.
	GetAllKV() []any
	// WithName returns a logger whose name is extended by name, dot separated.
	WithName(name string) Logger
	Name() string
	// AddCallerSkip is used by wrappers so that caller info points at their caller.
	AddCallerSkip(skip int) Logger
}

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// SpanEventRecorder mirrors log entries onto a tracing span.
type SpanEventRecorder interface {
	TraceID() string
	SpanID() string

	RecordEvent(name string, keysAndValues ...any)
	// RecordError records the event and marks the span as failed.
	RecordError(name string, keysAndValues ...any)
}
