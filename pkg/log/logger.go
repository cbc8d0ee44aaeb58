package log

// Logger receives protocol log events.
type Logger interface {
	// Log records a protocol event. Implementations must be safe for
	// concurrent use and must not block; events are logged from the session
	// event reader.
	Log(event Event)
}

// NoopLogger discards all events. Its zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
