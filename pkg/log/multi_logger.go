package log

// MultiLogger fans each event out to a fixed list of sinks, typically a
// FileLogger for the .clog capture and a SlogAdapter for the console.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger builds a fan-out logger. Nil and NoopLogger sinks are
// dropped, and nested MultiLoggers are flattened.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, s := range sinks {
		switch v := s.(type) {
		case nil, NoopLogger:
		case *MultiLogger:
			m.sinks = append(m.sinks, v.sinks...)
		default:
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *MultiLogger) Len() int { return len(m.sinks) }

func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
