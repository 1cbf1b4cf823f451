package process

import "encoding/json"

// Predicate evaluates an emitted Event and the owning step's current state
// to decide whether an Edge should fire. A nil Predicate always matches.
//
// Predicates should be pure: same (event, state) always yields the same
// bool. The orchestrator never relies on predicate evaluation order for
// correctness, only for the default/non-default tie-break described below.
type Predicate func(event Event, state any) bool

// TargetKind tags the variant carried by an OutputTarget.
type TargetKind int

const (
	// TargetFunction invokes a named entry point on a destination step.
	TargetFunction TargetKind = iota
	// TargetStateUpdate applies a declarative mutation to the owning
	// step's persisted state without invoking a function.
	TargetStateUpdate
	// TargetEmit re-emits the event's data to an external topic via the
	// process's ExternalChannel.
	TargetEmit
	// TargetAgentInvoke routes to an agent-kernel step, optionally
	// continuing an existing conversation thread.
	TargetAgentInvoke
	// TargetEnd is the sentinel that terminates the owning process.
	TargetEnd
)

// OutputTarget is the tagged variant an Edge routes to. Only the fields
// relevant to Kind are meaningful.
type OutputTarget struct {
	Kind TargetKind

	// TargetFunction / TargetAgentInvoke
	StepID        string
	FunctionName  string
	ParameterName string
	ThreadID      string

	// TargetStateUpdate
	StatePath string
	StateOp   string

	// TargetEmit
	Topic      string
	ChannelKey string
}

// FunctionTarget builds an OutputTarget that invokes functionName on
// stepID. parameterName is optional; when set, the firing event's Data is
// packed under that parameter name; when unset, Data fills the entry
// point's data parameter if it declares exactly one.
func FunctionTarget(stepID, functionName string, parameterName ...string) OutputTarget {
	t := OutputTarget{Kind: TargetFunction, StepID: stepID, FunctionName: functionName}
	if len(parameterName) > 0 {
		t.ParameterName = parameterName[0]
	}
	return t
}

// StateUpdateTarget builds an OutputTarget that mutates state at path using op.
func StateUpdateTarget(path, op string) OutputTarget {
	return OutputTarget{Kind: TargetStateUpdate, StatePath: path, StateOp: op}
}

// EmitTarget builds an OutputTarget that forwards data to an external topic.
func EmitTarget(topic string, channelKey ...string) OutputTarget {
	t := OutputTarget{Kind: TargetEmit, Topic: topic}
	if len(channelKey) > 0 {
		t.ChannelKey = channelKey[0]
	}
	return t
}

// AgentInvokeTarget builds an OutputTarget that routes to an agent step,
// optionally pinning a thread id.
func AgentInvokeTarget(stepID string, threadID ...string) OutputTarget {
	t := OutputTarget{Kind: TargetAgentInvoke, StepID: stepID}
	if len(threadID) > 0 {
		t.ThreadID = threadID[0]
	}
	return t
}

// EndTarget builds the sentinel OutputTarget that terminates the owning process.
func EndTarget() OutputTarget {
	return OutputTarget{Kind: TargetEnd}
}

// Edge is a directed link keyed by a (source step, event name) pair. When
// GroupID is non-empty the edge feeds an EdgeGroup join rather than firing
// a standalone message.
type Edge struct {
	SourceStepID string
	EventName    string
	Target       OutputTarget
	Condition    Predicate
	Default      bool
	GroupID      string
}

// GroupSource identifies one of the declared contributors to an EdgeGroup.
type GroupSource struct {
	SourceStepID string
	EventName    string
}

// Key returns the stable <stepName>.<eventName> identity used inside a
// group's accumulated data map.
func (s GroupSource) Key() string {
	return s.SourceStepID + "." + s.EventName
}

// InputMapping converts an EdgeGroup's accumulated sourceKey->value map
// into the parameter map delivered to the destination function. A nil
// InputMapping passes the accumulated map through unchanged.
type InputMapping func(data map[string]any) map[string]any

// EdgeGroup declares an AllOf join: the destination step's entry point is
// invoked once every source in Sources has contributed a message.
type EdgeGroup struct {
	GroupID           string
	DestinationStepID string
	FunctionName      string
	Sources           []GroupSource
	InputMapping      InputMapping
}

func (g EdgeGroup) apply(data map[string]any) map[string]any {
	if g.InputMapping == nil {
		return data
	}
	return g.InputMapping(data)
}

// edgeJSON mirrors Edge without Condition, which is a Go closure and
// cannot be encoded. A storage snapshot round-trip rebuilds routing from
// the process definition rather than from stored JSON, so the dropped
// field never needs to survive the trip; HasCondition only records
// whether one was present for diagnostic purposes.
type edgeJSON struct {
	SourceStepID string       `json:"source_step_id"`
	EventName    string       `json:"event_name"`
	Target       OutputTarget `json:"target"`
	HasCondition bool         `json:"has_condition"`
	Default      bool         `json:"default"`
	GroupID      string       `json:"group_id"`
}

// MarshalJSON encodes everything about e except Condition, which has no
// JSON representation.
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeJSON{
		SourceStepID: e.SourceStepID,
		EventName:    e.EventName,
		Target:       e.Target,
		HasCondition: e.Condition != nil,
		Default:      e.Default,
		GroupID:      e.GroupID,
	})
}

// UnmarshalJSON decodes e without restoring Condition; callers that need
// routing behavior back rebuild it from the process definition.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw edgeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.SourceStepID = raw.SourceStepID
	e.EventName = raw.EventName
	e.Target = raw.Target
	e.Default = raw.Default
	e.GroupID = raw.GroupID
	e.Condition = nil
	return nil
}

// edgeGroupJSON mirrors EdgeGroup without InputMapping, for the same
// reason edgeJSON drops Condition.
type edgeGroupJSON struct {
	GroupID           string        `json:"group_id"`
	DestinationStepID string        `json:"destination_step_id"`
	FunctionName      string        `json:"function_name"`
	Sources           []GroupSource `json:"sources"`
	HasMapping        bool          `json:"has_mapping"`
}

// MarshalJSON encodes everything about g except InputMapping.
func (g EdgeGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeGroupJSON{
		GroupID:           g.GroupID,
		DestinationStepID: g.DestinationStepID,
		FunctionName:      g.FunctionName,
		Sources:           g.Sources,
		HasMapping:        g.InputMapping != nil,
	})
}

// UnmarshalJSON decodes g without restoring InputMapping.
func (g *EdgeGroup) UnmarshalJSON(data []byte) error {
	var raw edgeGroupJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.GroupID = raw.GroupID
	g.DestinationStepID = raw.DestinationStepID
	g.FunctionName = raw.FunctionName
	g.Sources = raw.Sources
	g.InputMapping = nil
	return nil
}
