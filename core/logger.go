package core

// Logger is implemented by the app loggers.
// Besides the message, args may hold errors, extra data maps and the user.User the log is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Metrics records business events. Implementations must be safe for concurrent use.
type Metrics interface {
	WorkflowActionProcessed(entityType, action, status string)
	EntityMutated(entityType, operation string)
}

type noopMetrics struct{}

func (noopMetrics) WorkflowActionProcessed(string, string, string) {}
func (noopMetrics) EntityMutated(string, string)                   {}

// NoopMetrics discards every event.
var NoopMetrics Metrics = noopMetrics{}
