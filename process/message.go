package process

// EndStepID is the reserved destination id that, when targeted by a
// dispatched message, causes the owning orchestrator to terminate after
// draining the superstep that contained it.
const EndStepID = "__end__"

// StepMessage is a scheduled invocation produced by evaluating an Event
// against the routing table, or by an EdgeGroupProcessor releasing a join.
//
// TargetKind tags which of the mutually exclusive payload shapes below is
// populated: FunctionName/Parameters for TargetFunction/TargetAgentInvoke,
// StatePath/StateOp for TargetStateUpdate, Topic/ChannelKey for TargetEmit.
type StepMessage struct {
	SourceID      string
	DestinationID string
	FunctionName  string
	SourceEventID string
	TargetEventID string
	Data          any
	Parameters    map[string]any
	GroupID       string
	ThreadID      string

	// SourceLocalEventID is the unqualified event name the source step
	// emitted under, e.g. "Produce.OnResult" or a custom emitted name.
	// Paired with SourceID, it reproduces GroupSource.Key()'s
	// <stepId>.<eventName> shape without depending on the source step's
	// run id, which SourceEventID's qualified namespace does carry and
	// GroupSource does not.
	SourceLocalEventID string

	TargetKind TargetKind
	StatePath  string
	StateOp    string
	Topic      string
	ChannelKey string
}

// IsEnd reports whether this message targets the sentinel end step.
func (m StepMessage) IsEnd() bool {
	return m.DestinationID == EndStepID
}
