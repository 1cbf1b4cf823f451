package process

import "errors"

// ErrorKind classifies an OrchestratorError for callers that need to
// decide whether a failure is fatal to the running process.
type ErrorKind int

const (
	// ErrDispatch covers unknown destination steps, unknown functions,
	// and malformed messages. Never fatal: surfaces as an OnError event.
	ErrDispatch ErrorKind = iota
	// ErrUserStep covers panics/errors raised by user step bodies.
	// Never fatal: converted to an OnError event.
	ErrUserStep
	// ErrStorage covers storage backend failures. Non-fatal by default:
	// treated as if the key were absent on read, a no-op on write.
	ErrStorage
	// ErrConfiguration covers missing edges or unknown step types found
	// at orchestrator construction. Always fatal, before any execution.
	ErrConfiguration
	// ErrCancellation distinguishes a cancellation from a true error; the
	// orchestrator returns normally to the caller.
	ErrCancellation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrDispatch:
		return "dispatch"
	case ErrUserStep:
		return "user-step"
	case ErrStorage:
		return "storage"
	case ErrConfiguration:
		return "configuration"
	case ErrCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// OrchestratorError is the structured error type returned from orchestrator,
// bus, and executor operations. It carries enough context for callers to
// route the failure (log, emit as an event, or treat as fatal) without
// parsing a message string.
type OrchestratorError struct {
	Kind      ErrorKind
	Message   string
	ProcessID string
	StepID    string
	Cause     error
}

func (e *OrchestratorError) Error() string {
	if e.StepID != "" {
		return e.Kind.String() + " error in step " + e.StepID + ": " + e.Message
	}
	return e.Kind.String() + " error: " + e.Message
}

func (e *OrchestratorError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether this error should halt the owning orchestrator.
// Only configuration errors are fatal; every other kind surfaces as an
// event and lets the process keep running.
func (e *OrchestratorError) IsFatal() bool {
	return e.Kind == ErrConfiguration
}

var (
	// ErrNoRoute names the case of an event with no matching edges and no
	// global-error fallback. MessageBus.EmitEvent does not return it: such
	// an event goes to the unconsumed-event handler or is dropped.
	ErrNoRoute = errors.New("process: no route for event")
	// ErrMaxSuperstepsExceeded is returned when the superstep loop hits
	// its configured bound without reaching quiescence.
	ErrMaxSuperstepsExceeded = errors.New("process: max supersteps exceeded")
	// ErrEmptySuperstepThreshold names the empty-superstep counter
	// exceeding its configured threshold in one-shot mode. ExecuteOnce
	// treats that as quiescence and returns nil, not this value.
	ErrEmptySuperstepThreshold = errors.New("process: empty superstep threshold exceeded")
	// ErrGroupAlreadyReleased is returned when a grouped message names an
	// edge group the bus has no registration for. A message for a group
	// whose processor has released starts a new accumulation instead.
	ErrGroupAlreadyReleased = errors.New("process: edge group already released")
	// ErrUnknownStep is returned when a message targets a step id absent
	// from the registry.
	ErrUnknownStep = errors.New("process: unknown step")
	// ErrUnknownFunction is returned when a message names a function not
	// present among a step's entry points.
	ErrUnknownFunction = errors.New("process: unknown function")
	// ErrNotInvocable names the case of an entry point whose input
	// template still has nil slots after assignment. The executor does not
	// return it: it skips the invocation and returns nil.
	ErrNotInvocable = errors.New("process: entry point not yet invocable")
	// ErrStepNotFound names a missing step definition. No function in this
	// package returns it; StepRegistry reports an unknown id with
	// ErrUnknownStep.
	ErrStepNotFound = errors.New("process: step not found")
)
