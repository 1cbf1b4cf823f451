// Package emit provides ambient structured-event emission for runtime
// diagnostics: orchestrator superstep boundaries, dispatch outcomes,
// routing decisions, and storage errors. This is distinct from the
// business-level process.Event the message bus routes between steps.
package emit

// Event is one diagnostic event emitted during orchestrator execution.
type Event struct {
	// ProcessID identifies the running process that emitted this event.
	ProcessID string

	// Superstep is the sequential superstep number (1-indexed). Zero when
	// the emitter does not track it, as for the step executor's
	// dispatch_error events.
	Superstep int

	// StepID identifies which step emitted this event. Empty for
	// process-level events.
	StepID string

	// Msg is a short machine-matchable event name, e.g. "superstep_start",
	// "dispatch_error", "emit_error".
	Msg string

	// Meta carries event-specific structured data. Common keys:
	// "pending", "error", "function_name", "topic".
	Meta map[string]interface{}
}
