package manager

import "time"

// Logger is the minimal structured-logging interface this package
// depends on, satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Event is a notable device-lifecycle occurrence: DISCOVERED,
// DETECTED, SILENT, CONFIRMED, CHANGED, SET, RETRY, TIMEOUT,
// RESET_END_OF_PULSE. These are events, not errors — consumers may
// subscribe via Options.OnEvent; the manager always logs them too.
type Event struct {
	Action  string
	Subject string
	Detail  string
	Time    time.Time
}

// emit routes an event to the optional subscriber and the logger. The
// caller must already hold m.mu if the event concerns mutable device
// state — emit itself does not touch the table.
func (m *Manager) emit(action, subject, detail string) {
	evt := Event{Action: action, Subject: subject, Detail: detail, Time: m.clock()}

	m.logger.Info("kasa event", "category", "device", "action", evt.Action, "subject", evt.Subject, "detail", evt.Detail)

	if m.onEvent != nil {
		m.onEvent(evt)
	}
}
