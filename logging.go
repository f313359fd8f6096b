package hier

import "time"

// OperationLogEvent describes one public service operation for logging.
type OperationLogEvent struct {
	Op       string
	Owner    string
	Level    Level
	ID       string
	Duration time.Duration
	Err      error
}

// OperationLogger records service operations.
type OperationLogger interface {
	LogOperation(OperationLogEvent)
}

// OperationLoggerFunc adapts a function to OperationLogger.
type OperationLoggerFunc func(OperationLogEvent)

// LogOperation implements OperationLogger.
func (f OperationLoggerFunc) LogOperation(event OperationLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopOperationLogger struct{}

func (noopOperationLogger) LogOperation(OperationLogEvent) {}
