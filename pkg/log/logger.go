package log

// Logger receives capture events from the transport, CoAP and LwM2M layers.
// Log is called on the I/O path and must not block; implementations must be
// safe for concurrent use.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// LoggerFunc adapts a plain function to Logger.
type LoggerFunc func(Event)

func (f LoggerFunc) Log(e Event) { f(e) }

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
