package process

import "fmt"

// Visibility controls whether an Event may cross the boundary of the
// process that emitted it.
type Visibility int

const (
	// VisibilityInternal confines an event to the process that emitted it;
	// it never matches edges belonging to a parent process.
	VisibilityInternal Visibility = iota
	// VisibilityPublic allows an event to be forwarded across process
	// boundaries (see the sub-process wrapper in subprocess.go).
	VisibilityPublic
)

func (v Visibility) String() string {
	if v == VisibilityPublic {
		return "public"
	}
	return "internal"
}

// ExternalSourceID is the sourceId used for events injected from outside
// the process (see MessageBus.AddExternalEvent).
const ExternalSourceID = "external"

// Event is an in-flight notification routed by a MessageBus. QualifiedID,
// not LocalEventID, is the sole routing key: two steps may each emit a
// "Done" event without colliding, since each gets its own namespace.
type Event struct {
	SourceID     string
	Namespace    string
	LocalEventID string
	Data         any
	Visibility   Visibility
	IsError      bool
	ThreadID     string
}

// QualifiedID returns the routing key for this event: <namespace>.<localEventId>.
func (e Event) QualifiedID() string {
	return fmt.Sprintf("%s.%s", e.Namespace, e.LocalEventID)
}

// StepNamespace builds the namespace a step's own events are scoped under:
// <stepName>_<runId>.
func StepNamespace(stepName, runID string) string {
	return stepName + "_" + runID
}

// ResultEventID is the local event id a successful entry-point invocation
// emits: <functionName>.OnResult.
func ResultEventID(functionName string) string {
	return functionName + ".OnResult"
}

// ErrorEventID is the local event id a failed entry-point invocation emits:
// <functionName>.OnError.
func ErrorEventID(functionName string) string {
	return functionName + ".OnError"
}
