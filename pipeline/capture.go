package pipeline

import (
	"context"
	"log/slog"
)

// ErrorCapture receives unexpected faults caught at the pipeline boundary.
// Implementations forward them to an external error sink; failures inside the
// capture itself must never propagate.
type ErrorCapture interface {
	Capture(ctx context.Context, event string, recovered any, stack []byte)
}

// LogCapture is the default capture sink: it writes the fault and its stack
// to the structured log.
type LogCapture struct {
	logger *slog.Logger
}

// NewLogCapture creates a capture sink over the given logger.
func NewLogCapture(logger *slog.Logger) *LogCapture {
	return &LogCapture{logger: logger}
}

// Capture implements ErrorCapture.
func (c *LogCapture) Capture(_ context.Context, event string, recovered any, stack []byte) {
	c.logger.Error("unexpected fault in pipeline",
		"event", event,
		"recovered", recovered,
		"stack", string(stack))
}
